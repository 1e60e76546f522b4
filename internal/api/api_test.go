package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/subservice"
	"github.com/starford/subtrack/internal/testutil"
)

// testEnv sets up a temp SQLite DB, service and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*subservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*subservice.Service, http.Handler) {
	t.Helper()
	svc := subservice.New(testutil.TestDB(t), testutil.TestEngine(t),
		subservice.WithClock(testutil.FixedClock(t, "2025-09-08")))
	return svc, NewRouter(svc, authEnabled, token, sseHandler, 1<<20)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedAndDetect(t *testing.T, router http.Handler) {
	t.Helper()
	if w := do(t, router, http.MethodPost, "/demo/seed", nil); w.Code != http.StatusOK {
		t.Fatalf("seed = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPost, "/detect", nil); w.Code != http.StatusOK {
		t.Fatalf("detect = %d, body = %s", w.Code, w.Body.String())
	}
}

func listSubscriptions(t *testing.T, router http.Handler) []models.Subscription {
	t.Helper()
	w := do(t, router, http.MethodGet, "/subscriptions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp SubscriptionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Subscriptions
}

func TestPing(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ping = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"pong"`)) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDemoFlow(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/demo/seed", nil)
	var seed SeedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &seed)
	if seed.Inserted != 12 {
		t.Errorf("inserted = %d, want 12", seed.Inserted)
	}

	w = do(t, router, http.MethodPost, "/detect", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("detect = %d", w.Code)
	}
	var rep DetectResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Created != 3 {
		t.Errorf("created = %d, want 3", rep.Created)
	}

	subs := listSubscriptions(t, router)
	if len(subs) != 3 {
		t.Fatalf("subscriptions = %d, want 3", len(subs))
	}

	w = do(t, router, http.MethodGet, "/subscriptions/"+subs[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/vendors", nil)
	var vendors VendorListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &vendors)
	if len(vendors.Vendors) != 4 {
		t.Errorf("vendors = %d, want 4", len(vendors.Vendors))
	}

	w = do(t, router, http.MethodPost, "/demo/reset", nil)
	if w.Code != http.StatusOK {
		t.Errorf("reset = %d", w.Code)
	}
	if n := len(listSubscriptions(t, router)); n != 0 {
		t.Errorf("after reset subscriptions = %d", n)
	}
}

func TestGetSubscription_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/subscriptions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPatchSubscription(t *testing.T) {
	_, router := testEnv(t, "")
	seedAndDetect(t, router)
	id := listSubscriptions(t, router)[0].ID

	w := do(t, router, http.MethodPatch, "/subscriptions/"+id, map[string]any{
		"status":        "cancelled",
		"next_expected": "2025-12-01",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	var sub models.Subscription
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if sub.Status != models.StatusCancelled || sub.Ownership.Lifecycle != models.OwnerUser {
		t.Errorf("patched = %+v", sub)
	}
	if sub.NextExpected == nil || sub.NextExpected.Format(models.DateLayout) != "2025-12-01" {
		t.Errorf("next_expected = %v", sub.NextExpected)
	}

	w = do(t, router, http.MethodPatch, "/subscriptions/"+id, map[string]any{"clear_override": true})
	if w.Code != http.StatusOK {
		t.Fatalf("clear = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if sub.Status != models.StatusInferred || sub.Ownership.Lifecycle != models.OwnerEngine {
		t.Errorf("cleared = %+v", sub)
	}
}

func TestPatchSubscription_BadRequests(t *testing.T) {
	_, router := testEnv(t, "")
	seedAndDetect(t, router)
	id := listSubscriptions(t, router)[0].ID

	cases := map[string]any{
		"empty":      map[string]any{},
		"mixed":      map[string]any{"clear_override": true, "status": "active"},
		"bad date":   map[string]any{"next_expected": "12/01/2025"},
		"bad amount": map[string]any{"baseline_amount": "lots"},
		"bad status": map[string]any{"status": "paused"},
		"unknown":    map[string]any{"colour": "red"},
	}
	for name, body := range cases {
		w := do(t, router, http.MethodPatch, "/subscriptions/"+id, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (body %s)", name, w.Code, w.Body.String())
		}
	}

	w := do(t, router, http.MethodPatch, "/subscriptions/missing", map[string]any{"status": "active"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing id = %d, want 404", w.Code)
	}
}

func TestTransactionsEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/transactions", AddTransactionRequest{
		Vendor: "Hulu", Amount: "7.99", Currency: "USD", Date: "2025-09-01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add = %d, body = %s", w.Code, w.Body.String())
	}

	for _, bad := range []AddTransactionRequest{
		{Amount: "7.99", Date: "2025-09-01"},
		{Vendor: "Hulu", Amount: "abc", Date: "2025-09-01"},
		{Vendor: "Hulu", Amount: "7.99", Date: "yesterday"},
		{Vendor: "Hulu", Amount: "0", Date: "2025-09-01"},
	} {
		if w := do(t, router, http.MethodPost, "/transactions", bad); w.Code != http.StatusBadRequest {
			t.Errorf("add %+v = %d, want 400", bad, w.Code)
		}
	}

	w = do(t, router, http.MethodGet, "/transactions?vendor=hulu&limit=5", nil)
	var list TransactionListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Transactions) != 1 {
		t.Errorf("transactions = %d, want 1", len(list.Transactions))
	}

	w = do(t, router, http.MethodGet, "/search?q=hul", nil)
	var search SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &search)
	if len(search.Results) != 1 {
		t.Errorf("search results = %d, want 1", len(search.Results))
	}

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
}

func TestAggregatorSync_NotConfigured(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/aggregator/sync", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/invoices", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInvoiceUploadAndList(t *testing.T) {
	_, router := testEnv(t, "")

	w := uploadFile(t, router, "adobe.pdf", []byte("%PDF-1.4 fake"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var inv models.Invoice
	_ = json.Unmarshal(w.Body.Bytes(), &inv)
	if inv.VendorKey != "adobe" || inv.Filename != "adobe.pdf" {
		t.Errorf("invoice = %+v", inv)
	}

	if w := uploadFile(t, router, "notes.txt", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("txt upload = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/invoices", nil)
	var list InvoiceListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Invoices) != 1 {
		t.Errorf("invoices = %d, want 1", len(list.Invoices))
	}
}

func TestInvoiceUpload_MissingFile(t *testing.T) {
	_, router := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/invoices", bytes.NewReader([]byte("nope")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/subscriptions", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodPost, "/detect", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE())
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
