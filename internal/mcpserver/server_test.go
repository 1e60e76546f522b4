package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/subservice"
	"github.com/starford/subtrack/internal/testutil"
)

func testServer(t *testing.T) (*Server, *subservice.Service) {
	t.Helper()
	svc := subservice.New(testutil.TestDB(t), testutil.TestEngine(t),
		subservice.WithClock(testutil.FixedClock(t, "2025-09-08")))
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "detect_subscriptions":
		result, err = srv.detectSubscriptions(ctx, req)
	case "list_subscriptions":
		result, err = srv.listSubscriptions(ctx, req)
	case "override_subscription":
		result, err = srv.overrideSubscription(ctx, req)
	case "list_transactions":
		result, err = srv.listTransactions(ctx, req)
	case "add_transaction":
		result, err = srv.addTransaction(ctx, req)
	case "get_detection_rules":
		result, err = srv.getDetectionRules(ctx, req)
	case "import_document":
		result, err = srv.importDocument(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func addCharges(t *testing.T, srv *Server, vendor, amount string, dates ...string) {
	t.Helper()
	for _, d := range dates {
		r := callTool(t, srv, "add_transaction", map[string]interface{}{
			"vendor": vendor, "amount": amount, "date": d,
		})
		if r.IsError {
			t.Fatalf("add_transaction: %s", resultText(r))
		}
	}
}

func TestDetectAndList(t *testing.T) {
	srv, _ := testServer(t)
	addCharges(t, srv, "Netflix", "15.99", "2025-07-08", "2025-08-07", "2025-09-06")

	r := callTool(t, srv, "detect_subscriptions", nil)
	if r.IsError {
		t.Fatalf("detect: %s", resultText(r))
	}
	var rep subservice.RunReport
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Created != 1 {
		t.Errorf("created = %d, want 1", rep.Created)
	}

	r = callTool(t, srv, "list_subscriptions", map[string]interface{}{})
	var subs []models.Subscription
	_ = json.Unmarshal([]byte(resultText(r)), &subs)
	if len(subs) != 1 || subs[0].VendorKey != "netflix" || subs[0].Interval != models.IntervalMonthly {
		t.Errorf("subscriptions = %+v", subs)
	}

	r = callTool(t, srv, "list_subscriptions", map[string]interface{}{"status": "cancelled"})
	_ = json.Unmarshal([]byte(resultText(r)), &subs)
	if len(subs) != 0 {
		t.Errorf("cancelled filter returned %d", len(subs))
	}
}

func TestOverrideSubscription(t *testing.T) {
	srv, svc := testServer(t)
	addCharges(t, srv, "Spotify", "9.99", "2025-07-01", "2025-08-01", "2025-09-01")
	callTool(t, srv, "detect_subscriptions", nil)
	subs, _ := svc.ListSubscriptions(context.Background())
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d", len(subs))
	}
	id := subs[0].ID

	r := callTool(t, srv, "override_subscription", map[string]interface{}{
		"id": id, "status": "cancelled", "baseline_amount": "10.99",
	})
	if r.IsError {
		t.Fatalf("override: %s", resultText(r))
	}
	var sub models.Subscription
	_ = json.Unmarshal([]byte(resultText(r)), &sub)
	if sub.Status != models.StatusCancelled || sub.Ownership.Observation != models.OwnerUser {
		t.Errorf("override = %+v", sub)
	}

	r = callTool(t, srv, "override_subscription", map[string]interface{}{"id": id, "clear": true})
	_ = json.Unmarshal([]byte(resultText(r)), &sub)
	if sub.Status != models.StatusInferred {
		t.Errorf("cleared status = %s", sub.Status)
	}

	for _, args := range []map[string]interface{}{
		{"id": id},
		{"id": id, "next_expected": "soon"},
		{"id": id, "baseline_amount": "free"},
		{"id": "missing", "status": "active"},
		{"status": "active"},
	} {
		if r := callTool(t, srv, "override_subscription", args); !r.IsError {
			t.Errorf("override %v should fail", args)
		}
	}
}

func TestAddTransaction_Invalid(t *testing.T) {
	srv, _ := testServer(t)
	for _, args := range []map[string]interface{}{
		{"amount": "1.00", "date": "2025-01-01"},
		{"vendor": "Gym", "amount": "abc", "date": "2025-01-01"},
		{"vendor": "Gym", "amount": "1.00", "date": "01/01/2025"},
		{"vendor": "Gym", "amount": "0", "date": "2025-01-01"},
	} {
		if r := callTool(t, srv, "add_transaction", args); !r.IsError {
			t.Errorf("add %v should fail", args)
		}
	}
}

func TestListTransactions(t *testing.T) {
	srv, _ := testServer(t)
	addCharges(t, srv, "Hulu", "7.99", "2025-08-10", "2025-09-10")
	addCharges(t, srv, "Gym", "30.00", "2025-09-02")

	r := callTool(t, srv, "list_transactions", map[string]interface{}{"vendor": "hulu", "limit": 1})
	var txns []models.Transaction
	_ = json.Unmarshal([]byte(resultText(r)), &txns)
	if len(txns) != 1 || txns[0].Date.Format(models.DateLayout) != "2025-09-10" {
		t.Errorf("transactions = %+v", txns)
	}
}

func TestDetectionRules(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_detection_rules", nil)
	text := resultText(r)
	for _, want := range []string{"# Subscription Detection Rules", "| monthly | 24 to 35 | last + 30 days |", "at least 2 charges"} {
		if !strings.Contains(text, want) {
			t.Errorf("rules missing %q", want)
		}
	}

	contents, err := srv.readRulesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != RulesURI || tc.Text != text {
		t.Error("resource should serve the same rules as the tool")
	}
}

func TestImportDocument_Statement(t *testing.T) {
	srv, svc := testServer(t)
	csv := "date,description,amount\n2025-08-10,Hulu,7.99\n2025-09-10,Hulu,7.99\n"
	uri := "data:text/csv;base64," + base64.StdEncoding.EncodeToString([]byte(csv))

	r := callTool(t, srv, "import_document", map[string]interface{}{"url": uri, "filename": "sept.csv"})
	if r.IsError {
		t.Fatalf("import: %s", resultText(r))
	}
	var rep subservice.ImportReport
	_ = json.Unmarshal([]byte(resultText(r)), &rep)
	if rep.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", rep.Inserted)
	}
	txns, _ := svc.ListTransactions(context.Background(), "hulu", 0)
	if len(txns) != 2 {
		t.Errorf("stored = %d, want 2", len(txns))
	}
}

func TestImportDocument_Invoice(t *testing.T) {
	srv, _ := testServer(t)
	uri := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 demo"))
	r := callTool(t, srv, "import_document", map[string]interface{}{"url": uri})
	if r.IsError {
		t.Fatalf("import: %s", resultText(r))
	}
	var inv models.Invoice
	_ = json.Unmarshal([]byte(resultText(r)), &inv)
	if inv.VendorKey != "adobe" {
		t.Errorf("invoice = %+v", inv)
	}
}

func TestImportDocument_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	cases := map[string]map[string]interface{}{
		"not base64":  {"url": "data:text/csv,plain"},
		"bad mime":    {"url": "data:text/html;base64,PGI+"},
		"bad ext":     {"url": "data:text/csv;base64,YQ==", "filename": "x.exe"},
		"fake pdf":    {"url": "data:application/pdf;base64,aGVsbG8="},
		"loopback":    {"url": "http://127.0.0.1/statement.csv"},
		"bad scheme":  {"url": "ftp://example.com/a.csv"},
		"missing url": {},
	}
	for name, args := range cases {
		if r := callTool(t, srv, "import_document", args); !r.IsError {
			t.Errorf("%s: expected error, got %s", name, resultText(r))
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"my statement.csv": "my_statement.csv",
		"ok-file_1.pdf":    "ok-file_1.pdf",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
