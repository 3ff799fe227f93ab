package caller

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// CodeCallerRequired is the error code for a missing or malformed header.
const CodeCallerRequired = "CALLER_REQUIRED"

// Middleware requires a Router-Caller header on owner-scoped routes and
// stores the owner in the request context.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(Header)
			if header == "" {
				writeCallerError(w, "Router-Caller header is required")
				return
			}
			owner, err := ParseHeader(header)
			if err != nil {
				logger.Warn("invalid Router-Caller header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeCallerError(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// isExemptPath reports paths authenticated some other way: webhooks by
// signature, oauth by state, MCP by request meta.
func isExemptPath(path string) bool {
	switch {
	case path == "/health" || path == "/healthz":
		return true
	case path == "/mcp":
		return true
	case strings.HasPrefix(path, "/webhooks/"), strings.HasPrefix(path, "/oauth/"):
		return true
	default:
		return false
	}
}

func writeCallerError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = CodeCallerRequired
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
