package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"order-router/internal/match"
	"order-router/internal/model"
	"order-router/internal/placement"
)

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolCallParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts the JSON payload of an SSE "data:" line.
func parseSSEResponse(body string) []byte {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: "))
		}
	}
	return []byte(body)
}

func mcpPost(t *testing.T, srv http.Handler, sessionID string, req jsonrpcRequest) (*httptest.ResponseRecorder, jsonrpcResponse) {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("%s status = %d, body %s", req.Method, w.Code, w.Body.String())
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(parseSSEResponse(w.Body.String()), &resp); err != nil {
		t.Fatalf("decode %s response: %v\nbody: %s", req.Method, err, w.Body.String())
	}
	return w, resp
}

func initMCPSession(t *testing.T, srv http.Handler) string {
	t.Helper()
	w, resp := mcpPost(t, srv, "", jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]any{},
		},
	})
	if resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}
	return w.Header().Get("Mcp-Session-Id")
}

func callTool(t *testing.T, srv http.Handler, sessionID, name string, args any) callToolResult {
	t.Helper()
	_, resp := mcpPost(t, srv, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: args},
	})
	if resp.Error != nil {
		t.Fatalf("%s protocol error: %+v", name, resp.Error)
	}
	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode %s result: %v", name, err)
	}
	return result
}

func TestMCPToolsList(t *testing.T) {
	srv := testServer(Deps{})
	sessionID := initMCPSession(t, srv)

	_, resp := mcpPost(t, srv, sessionID, jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range result.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{"match_order", "get_match", "place_orders"} {
		if !got[name] {
			t.Errorf("tool %s not listed; got %v", name, got)
		}
	}
}

func TestMCPPlaceOrders(t *testing.T) {
	var gotOwner string
	placer := &fakePlacer{PlaceFunc: func(_ context.Context, ownerID string, ids []string) ([]placement.OrderOutcome, error) {
		gotOwner = ownerID
		return []placement.OrderOutcome{{OrderID: ids[0], Status: model.OrderStatusAwaiting, Groups: []placement.GroupOutcome{}}}, nil
	}}
	srv := testServer(Deps{Placer: placer})
	sessionID := initMCPSession(t, srv)

	result := callTool(t, srv, sessionID, "place_orders", map[string]any{
		"meta":      map[string]any{"owner": "user-1"},
		"order_ids": []string{"o1"},
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if gotOwner != "user-1" {
		t.Errorf("owner = %q, want user-1", gotOwner)
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, `"orderId":"o1"`) {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestMCPGetMatch(t *testing.T) {
	m := &fakeMatcher{GetMatchFunc: func(_ context.Context, ownerID string, input []model.ItemKey, opts match.GetMatchOptions) (*match.Lookup, error) {
		if ownerID != "user-1" || len(input) != 1 || !opts.RequireAll {
			t.Errorf("GetMatch(%s, %+v, %+v)", ownerID, input, opts)
		}
		return &match.Lookup{MatchID: "m-9", Products: []match.MatchedProduct{}}, nil
	}}
	srv := testServer(Deps{Matcher: m})
	sessionID := initMCPSession(t, srv)

	result := callTool(t, srv, sessionID, "get_match", map[string]any{
		"meta":        map[string]any{"owner": "user-1"},
		"input":       []map[string]any{{"productId": "p1", "variantId": "v1", "quantity": 1}},
		"require_all": true,
	})
	if result.IsError || len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "m-9") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPToolErrors(t *testing.T) {
	m := &fakeMatcher{MatchOrderFunc: func(context.Context, string, string) (*model.Match, error) {
		return nil, model.ErrNotFound
	}}
	srv := testServer(Deps{Matcher: m})
	sessionID := initMCPSession(t, srv)

	tests := []struct {
		name     string
		args     map[string]any
		wantText string
	}{
		{name: "missing owner", args: map[string]any{"meta": map[string]any{"owner": ""}, "order_id": "o1"}, wantText: "CALLER_REQUIRED"},
		{name: "not found", args: map[string]any{"meta": map[string]any{"owner": "user-1"}, "order_id": "o1"}, wantText: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, srv, sessionID, "match_order", tt.args)
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, tt.wantText) {
				t.Errorf("content = %+v, want %s", result.Content, tt.wantText)
			}
		})
	}
}
