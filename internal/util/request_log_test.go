package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogRecordsStatusAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := WithRequestLog("catalog", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest(http.MethodDelete, "/books/9", nil)
	req = req.WithContext(ContextWithLogger(req.Context(), logger))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "http_request" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Fatalf("level = %v, want WARN for 404", entry["level"])
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Fatalf("status = %v", entry["status"])
	}
	if entry["bytes"] != float64(len("missing")) {
		t.Fatalf("bytes = %v", entry["bytes"])
	}
	if entry["service"] != "catalog" || entry["method"] != http.MethodDelete {
		t.Fatalf("unexpected fields: %v", entry)
	}
}

func TestWithRequestLogDefaultsToOK(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := WithRequestLog("", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(ContextWithLogger(req.Context(), logger))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["status"] != float64(http.StatusOK) || entry["service"] != "unknown" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
