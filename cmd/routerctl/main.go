// routerctl is a CLI tool for exercising a running order router.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	routerctl match -owner ID -order ID
//	routerctl apply -owner ID -order ID
//	routerctl lookup -owner ID -item PRODUCT[:VARIANT[:QTY]] [-item ...] [-all]
//	routerctl place -owner ID -order ID [-order ID ...]
//	routerctl state issue -secret S -platform ID -kind shop|channel
//	routerctl state decode -secret S STATE
//
// Examples:
//
//	routerctl match -router http://localhost:8080 -owner user-42 -order ord-1
//	routerctl place -owner user-42 -order ord-1 -order ord-2
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"order-router/internal/caller"
	"order-router/internal/model"
	"order-router/internal/oauth"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	routerURL string
	ownerID   string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "match":
		runMatch(args, "match")
	case "apply":
		runMatch(args, "apply-match")
	case "lookup":
		runLookup(args)
	case "place":
		runPlace(args)
	case "state":
		runState(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `routerctl - order router test tool

Usage:
  routerctl <command> [options]

Commands:
  match     Build a fresh match for an order
  apply     Build a match and record it on the order's cart items
  lookup    Find existing matches for item keys
  place     Place channel purchases for orders
  state     Issue or decode a signed OAuth state

Examples:
  routerctl match -owner user-42 -order ord-1
  routerctl lookup -owner user-42 -item prod-1:var-1:2 -all
  routerctl place -owner user-42 -order ord-1 -order ord-2
  STATE=$(routerctl state issue -secret s3cret -platform shopify -kind shop -q)
  routerctl state decode -secret s3cret "$STATE"

Run 'routerctl <command> -h' for command-specific options.
`)
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func commonFlags(fs *flag.FlagSet) {
	fs.StringVar(&routerURL, "router", "http://localhost:8080", "Order router base URL")
	fs.StringVar(&ownerID, "owner", "", "Owner id sent in the Router-Caller header (required)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the result body")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// MATCH / APPLY COMMANDS
// =============================================================================

func runMatch(args []string, action string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	commonFlags(fs)
	var orderID string
	fs.StringVar(&orderID, "order", "", "Order ID (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: routerctl %s -owner ID -order ID [options]\n\nOptions:\n", strings.TrimSuffix(action, "-match"))
		fs.PrintDefaults()
	}
	parseFlags(fs, args)

	if ownerID == "" || orderID == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest(http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/"+action, nil)
	if err != nil {
		fatal("Failed to %s order: %v", strings.TrimSuffix(action, "-match"), err)
	}
	if quiet {
		printRaw(resp)
		return
	}
	printSuccess("Order %s matched", orderID)
	if output, ok := resp["output"].([]any); ok {
		fmt.Printf("  Channel items: %s%d%s\n", colorCyan, len(output), colorReset)
	}
	if id, ok := resp["matchId"].(string); ok {
		fmt.Printf("  Match: %s%s%s (added %v, removed %v, updated %v)\n",
			colorCyan, id, colorReset, resp["added"], resp["removed"], resp["updated"])
	}
}

// =============================================================================
// LOOKUP COMMAND
// =============================================================================

func runLookup(args []string) {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	commonFlags(fs)
	var items stringList
	var requireAll bool
	fs.Var(&items, "item", "Item key PRODUCT[:VARIANT[:QTY]] (repeatable, required)")
	fs.BoolVar(&requireAll, "all", false, "Only return matches covering every item")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: routerctl lookup -owner ID -item KEY [-item KEY ...] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	parseFlags(fs, args)

	if ownerID == "" || len(items) == 0 {
		fs.Usage()
		os.Exit(1)
	}

	keys := make([]model.ItemKey, 0, len(items))
	for _, raw := range items {
		key, err := parseItemKey(raw)
		if err != nil {
			fatal("Invalid item %q: %v", raw, err)
		}
		keys = append(keys, key)
	}

	resp, err := doRequest(http.MethodPost, "/matches/lookup", map[string]any{
		"input":      keys,
		"requireAll": requireAll,
	})
	if err != nil {
		fatal("Lookup failed: %v", err)
	}
	if quiet {
		printRaw(resp)
		return
	}
	printSuccess("Lookup complete")
}

// parseItemKey reads PRODUCT[:VARIANT[:QTY]]. Quantity defaults to 1.
func parseItemKey(raw string) (model.ItemKey, error) {
	parts := strings.SplitN(raw, ":", 3)
	key := model.ItemKey{ProductID: parts[0], Quantity: 1}
	if key.ProductID == "" {
		return key, errors.New("product id is required")
	}
	if len(parts) > 1 {
		key.VariantID = parts[1]
	}
	if len(parts) > 2 {
		qty, err := strconv.Atoi(parts[2])
		if err != nil || qty <= 0 {
			return key, errors.New("quantity must be a positive integer")
		}
		key.Quantity = qty
	}
	return key, nil
}

// =============================================================================
// PLACE COMMAND
// =============================================================================

func runPlace(args []string) {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	commonFlags(fs)
	var orders stringList
	fs.Var(&orders, "order", "Order ID (repeatable, required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: routerctl place -owner ID -order ID [-order ID ...] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	parseFlags(fs, args)

	if ownerID == "" || len(orders) == 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest(http.MethodPost, "/orders/place", map[string]any{"orderIds": []string(orders)})
	if err != nil {
		fatal("Failed to place orders: %v", err)
	}
	if quiet {
		printRaw(resp)
		return
	}

	outcomes, _ := resp["orders"].([]any)
	for _, o := range outcomes {
		om, ok := o.(map[string]any)
		if !ok {
			continue
		}
		id, _ := om["orderId"].(string)
		if msg, ok := om["error"].(string); ok && msg != "" {
			printError("%s: %s", id, msg)
			continue
		}
		printSuccess("%s placed", id)
	}
}

// =============================================================================
// STATE COMMAND
// =============================================================================

func runState(args []string) {
	if len(args) == 0 {
		fatal("Usage: routerctl state issue|decode [options]")
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("state "+sub, flag.ExitOnError)
	var secret, platformID, kind string
	fs.StringVar(&secret, "secret", os.Getenv("OAUTH_STATE_SECRET"), "State signing secret")
	fs.StringVar(&platformID, "platform", "", "Platform ID (issue)")
	fs.StringVar(&kind, "kind", string(model.PlatformKindShop), "Platform kind: shop or channel (issue)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the state")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	parseFlags(fs, args)

	signer, err := oauth.NewSigner(secret)
	if err != nil {
		fatal("%v", err)
	}

	switch sub {
	case "issue":
		if platformID == "" {
			fatal("-platform is required")
		}
		state, err := signer.Issue(platformID, model.PlatformKind(kind))
		if err != nil {
			fatal("Failed to issue state: %v", err)
		}
		if quiet {
			fmt.Println(state)
			return
		}
		printSuccess("State issued (valid for %s)", oauth.StateTTL)
		fmt.Printf("  %s%s%s\n", colorCyan, state, colorReset)

	case "decode":
		if fs.NArg() != 1 {
			fatal("decode takes exactly one state argument")
		}
		state, err := signer.Decode(fs.Arg(0))
		if err != nil {
			fatal("Invalid state: %v", err)
		}
		var body any = state.Legacy
		if state.Marketplace != nil {
			body = state.Marketplace
		}
		data, _ := json.Marshal(body)
		if quiet {
			fmt.Println(string(data))
			return
		}
		printSuccess("State is valid")
		printJSON(data, "  ")

	default:
		fatal("Unknown state command: %s (use: issue, decode)", sub)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// callerHeader encodes the owner as the Router-Caller dictionary.
func callerHeader(owner string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("owner", httpsfv.NewItem(owner))
	return httpsfv.Marshal(dict)
}

func doRequest(method, path string, body any) (map[string]any, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, routerURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	header, err := callerHeader(ownerID)
	if err != nil {
		return nil, fmt.Errorf("encoding caller header: %w", err)
	}
	req.Header.Set(caller.Header, header)

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printRaw(v map[string]any) {
	data, _ := json.Marshal(v)
	fmt.Println(string(data))
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
