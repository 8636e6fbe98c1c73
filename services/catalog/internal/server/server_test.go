package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stocktake/internal/ratelimit"
	"stocktake/pkg/domain"
	"stocktake/pkg/store"
	"stocktake/services/catalog/internal/app"
)

type downStore struct {
	*store.MemoryStore
}

func (downStore) ListBooks(context.Context) ([]domain.Book, error) {
	return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (downStore) DeleteBook(context.Context, int64) error {
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (downStore) Ping(context.Context) error {
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func newTestServer(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()
	return newTestServerWithStore(t, store.NewMemoryStore(), mutate)
}

func newTestServerWithStore(t *testing.T, st store.Store, mutate func(*Config)) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{Store: st})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: a, RequestTimeout: 5 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode error body %q: %v", data, err)
	}
	return out
}

func TestServerRequiresApp(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without app")
	}
}

func TestCatalogScenario(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, data := doRequest(t, http.MethodPost, srv.URL+"/books/", `{"title":"Dune","author":"Herbert","status":"available"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expected 201, got %d: %s", resp.StatusCode, data)
	}
	var created domain.Book
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	want := domain.Book{ID: 1, Title: "Dune", Author: "Herbert", Status: "available"}
	if created != want {
		t.Fatalf("created = %#v, want %#v", created, want)
	}

	resp, data = doRequest(t, http.MethodGet, srv.URL+"/books/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list expected 200, got %d", resp.StatusCode)
	}
	if got := strings.TrimSpace(string(data)); got != `[{"id":1,"title":"Dune","author":"Herbert","status":"available"}]` {
		t.Fatalf("list body = %s", got)
	}

	resp, data = doRequest(t, http.MethodDelete, srv.URL+"/books/1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete expected 200, got %d: %s", resp.StatusCode, data)
	}
	var confirm struct {
		Message string `json:"message"`
		ID      int64  `json:"id"`
	}
	if err := json.Unmarshal(data, &confirm); err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if confirm.Message != "book 1 deleted" || confirm.ID != 1 {
		t.Fatalf("unexpected confirmation %#v", confirm)
	}

	_, data = doRequest(t, http.MethodGet, srv.URL+"/books", "")
	if got := strings.TrimSpace(string(data)); got != "[]" {
		t.Fatalf("list after delete = %s, want []", got)
	}
}

func TestListBeforeAnyWriteIsEmpty(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, data := doRequest(t, http.MethodGet, srv.URL+"/books/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := strings.TrimSpace(string(data)); got != "[]" {
		t.Fatalf("body = %s, want []", got)
	}
}

func TestDeleteMissingBookReturns404(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, data := doRequest(t, http.MethodDelete, srv.URL+"/books/999", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeError(t, data)
	if body.Code != "CATALOG_BOOK_NOT_FOUND" || body.Error != "book not found" {
		t.Fatalf("unexpected error body %#v", body)
	}
	if body.RequestID == "" || body.RequestID != resp.Header.Get("X-Request-Id") {
		t.Fatalf("expected request id %q in body, got %q", resp.Header.Get("X-Request-Id"), body.RequestID)
	}
}

func TestErrorBodyCarriesIncomingRequestID(t *testing.T) {
	srv := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/books/abc", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-Id", "req-from-client")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeError(t, data); body.RequestID != "req-from-client" {
		t.Fatalf("requestId = %q, want req-from-client", body.RequestID)
	}
}

func TestUpdateIsNotImplementedAndDoesNotMutate(t *testing.T) {
	srv := newTestServer(t, nil)
	doRequest(t, http.MethodPost, srv.URL+"/books/", `{"title":"Dune","author":"Herbert","status":"available"}`)

	for _, path := range []string{"/books/1", "/books/999"} {
		resp, data := doRequest(t, http.MethodPut, srv.URL+path, `{"title":"Changed"}`)
		if resp.StatusCode != http.StatusNotImplemented {
			t.Fatalf("PUT %s expected 501, got %d", path, resp.StatusCode)
		}
		body := decodeError(t, data)
		if body.Code != "CATALOG_UPDATE_NOT_IMPLEMENTED" || body.Error != "update not implemented" {
			t.Fatalf("unexpected error body %#v", body)
		}
		if strings.Contains(string(data), "updated") {
			t.Fatalf("PUT %s reported success: %s", path, data)
		}
	}

	_, data := doRequest(t, http.MethodGet, srv.URL+"/books/", "")
	if !strings.Contains(string(data), `"title":"Dune"`) {
		t.Fatalf("update mutated data: %s", data)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	cases := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		wantCode string
	}{
		{"invalid json", http.MethodPost, "/books/", `{"title":`, http.StatusBadRequest, "CATALOG_INVALID_REQUEST"},
		{"missing fields", http.MethodPost, "/books/", `{"status":"x"}`, http.StatusBadRequest, "CATALOG_VALIDATION_FAILED"},
		{"empty body", http.MethodPost, "/books/", "", http.StatusBadRequest, "CATALOG_VALIDATION_FAILED"},
		{"non numeric id", http.MethodDelete, "/books/abc", "", http.StatusBadRequest, "CATALOG_INVALID_ID"},
		{"zero id", http.MethodPut, "/books/0", `{}`, http.StatusBadRequest, "CATALOG_INVALID_ID"},
		{"update bad json", http.MethodPut, "/books/1", `nope`, http.StatusBadRequest, "CATALOG_INVALID_REQUEST"},
		{"patch collection", http.MethodPatch, "/books/", "", http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED"},
		{"get single book", http.MethodGet, "/books/1", "", http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED"},
		{"unknown sub path", http.MethodGet, "/books/1/cover", "", http.StatusNotFound, "SYSTEM_NOT_FOUND"},
		{"unknown path", http.MethodGet, "/nope", "", http.StatusNotFound, "SYSTEM_NOT_FOUND"},
		{"snapshot get", http.MethodGet, "/snapshots", "", http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED"},
		{"snapshots disabled", http.MethodPost, "/snapshots", "", http.StatusNotFound, "CATALOG_SNAPSHOTS_DISABLED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := doRequest(t, tc.method, srv.URL+tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, resp.StatusCode, data)
			}
			if body := decodeError(t, data); body.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", body.Code, tc.wantCode)
			}
		})
	}
}

func TestValidationDetails(t *testing.T) {
	srv := newTestServer(t, nil)
	_, data := doRequest(t, http.MethodPost, srv.URL+"/books/", `{"title":"","author":""}`)
	body := decodeError(t, data)
	if body.Details["title"] != "is required" || body.Details["author"] != "is required" {
		t.Fatalf("unexpected details %#v", body.Details)
	}
}

func TestBookHistory(t *testing.T) {
	srv := newTestServer(t, nil)
	doRequest(t, http.MethodPost, srv.URL+"/books/", `{"title":"Dune","author":"Herbert"}`)
	doRequest(t, http.MethodDelete, srv.URL+"/books/1", "")

	resp, data := doRequest(t, http.MethodGet, srv.URL+"/books/1/history", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var events []domain.BookEvent
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 || events[0].Action != domain.ActionCreated || events[1].Action != domain.ActionDeleted {
		t.Fatalf("unexpected events %#v", events)
	}

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/books/7/history", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown history, got %d", resp.StatusCode)
	}
}

func TestWriteRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewLocalLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv := newTestServer(t, func(cfg *Config) { cfg.WriteLimiter = limiter })

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/books/", `{"title":"A","author":"B"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first write expected 201, got %d", resp.StatusCode)
	}
	resp, data := doRequest(t, http.MethodPost, srv.URL+"/books/", `{"title":"A","author":"B"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second write expected 429, got %d", resp.StatusCode)
	}
	if body := decodeError(t, data); body.Code != "SYSTEM_RATE_LIMITED" {
		t.Fatalf("code = %q", body.Code)
	}
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/books/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", resp.StatusCode)
	}
}

func TestDatabaseUnavailable(t *testing.T) {
	srv := newTestServerWithStore(t, downStore{store.NewMemoryStore()}, nil)

	resp, data := doRequest(t, http.MethodGet, srv.URL+"/books/", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeError(t, data)
	if body.Code != "CATALOG_DB_UNAVAILABLE" || body.Error != "database unavailable" {
		t.Fatalf("unexpected error body %#v", body)
	}

	resp, data = doRequest(t, http.MethodDelete, srv.URL+"/books/1", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("DELETE expected 500, got %d", resp.StatusCode)
	}
	if body := decodeError(t, data); body.Code != "CATALOG_DB_UNAVAILABLE" {
		t.Fatalf("unexpected delete error body %#v", body)
	}

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/readyz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz expected 503, got %d", resp.StatusCode)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, _ := doRequest(t, http.MethodGet, srv.URL+path, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestIndexServesEmbeddedDefault(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.IndexPath = filepath.Join(t.TempDir(), "missing.html")
	})
	resp, data := doRequest(t, http.MethodGet, srv.URL+"/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if !bytes.Equal(data, defaultIndex) {
		t.Fatalf("expected embedded index page")
	}
}

func TestIndexServesConfiguredFile(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(indexPath, []byte("<h1>custom</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	srv := newTestServer(t, func(cfg *Config) { cfg.IndexPath = indexPath })
	resp, data := doRequest(t, http.MethodGet, srv.URL+"/", "")
	if resp.StatusCode != http.StatusOK || string(data) != "<h1>custom</h1>" {
		t.Fatalf("unexpected index response %d %q", resp.StatusCode, data)
	}
}
