package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"stocktake/internal/ratelimit"
	"stocktake/internal/util"
	"stocktake/internal/validation"
	"stocktake/pkg/domain"
	"stocktake/services/catalog/internal/app"
)

const maxBodyBytes = 1 << 20

//go:embed static/index.html
var defaultIndex []byte

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// WriteLimiter throttles POST/PUT/DELETE per client IP; nil disables it.
	WriteLimiter   ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	IndexPath      string
	RequestTimeout time.Duration
}

// Server exposes HTTP endpoints for the catalog service.
type Server struct {
	app            *app.App
	limiter        ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	indexPath      string
	requestTimeout time.Duration
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.WriteLimiter,
		trustedProxies: cfg.TrustedProxies,
		indexPath:      strings.TrimSpace(cfg.IndexPath),
		requestTimeout: cfg.RequestTimeout,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("catalog", util.WithSecurityHeaders(util.WithCORS(s.withTimeout(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)

	// books
	s.mux.Handle("/books", s.withWriteLimit(http.HandlerFunc(s.handleBooks)))
	s.mux.Handle("/books/", s.withWriteLimit(http.HandlerFunc(s.handleBookPath)))

	s.mux.Handle("/snapshots", s.withWriteLimit(http.HandlerFunc(s.handleSnapshots)))
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	if s.requestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withWriteLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && isWrite(r.Method) {
			key := "write:" + util.ClientIP(r, s.trustedProxies)
			if !s.limiter.Allow(r.Context(), key) {
				writeError(w, r, http.StatusTooManyRequests, "SYSTEM_RATE_LIMITED", "too many requests", nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found", nil)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r)
		return
	}
	body := defaultIndex
	if s.indexPath != "" {
		data, err := os.ReadFile(s.indexPath)
		switch {
		case err == nil:
			body = data
		case !errors.Is(err, os.ErrNotExist):
			util.LoggerFromContext(r.Context()).Warn("index_read_failed", "path", s.indexPath, "err", err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Ping(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("readiness_check_failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r)
	case http.MethodGet:
		s.handleListBooks(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

// /books/, /books/{id} or /books/{id}/history
func (s *Server) handleBookPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	if path == "" {
		s.handleBooks(w, r)
		return
	}
	parts := strings.SplitN(path, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "CATALOG_INVALID_ID", "invalid book id", nil)
		return
	}

	if len(parts) == 2 {
		if parts[1] != "history" {
			writeError(w, r, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found", nil)
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		s.handleBookHistory(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodPut:
		s.handleUpdateBook(w, r, id)
	case http.MethodDelete:
		s.handleDeleteBook(w, r, id)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBookInput
	if !decodeJSON(w, r, &req) {
		return
	}
	book, err := s.app.CreateBook(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListBooks(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, id int64) {
	var patch domain.BookPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	// Updates are not implemented; the body is still parsed so malformed
	// JSON gets a 400 first.
	err := s.app.UpdateBook(r.Context(), id, patch)
	if err == nil {
		err = app.ErrUpdateNotImplemented
	}
	writeAppError(w, r, err)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.app.DeleteBook(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("book %d deleted", id),
		"id":      id,
	})
}

func (s *Server) handleBookHistory(w http.ResponseWriter, r *http.Request, id int64) {
	events, err := s.app.BookHistory(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	info, err := s.app.Snapshot(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// decodeJSON reads a JSON body into dst. An empty body decodes as the zero
// value so that validation, not parsing, reports the missing fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, r, http.StatusBadRequest, "CATALOG_INVALID_REQUEST", "invalid JSON body", nil)
	return false
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed", nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"requestId,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
		Details:   details,
	})
}

// writeAppError maps catalog errors onto status codes. Unexpected errors are
// logged and replaced with a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, "CATALOG_VALIDATION_FAILED", verr.Error(), verr.Fields)
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, r, http.StatusNotFound, "CATALOG_BOOK_NOT_FOUND", "book not found", nil)
	case errors.Is(err, app.ErrSnapshotsDisabled):
		writeError(w, r, http.StatusNotFound, "CATALOG_SNAPSHOTS_DISABLED", "snapshots disabled", nil)
	case errors.Is(err, app.ErrUpdateNotImplemented):
		writeError(w, r, http.StatusNotImplemented, "CATALOG_UPDATE_NOT_IMPLEMENTED", "update not implemented", nil)
	case errors.Is(err, app.ErrUnavailable):
		util.LoggerFromContext(r.Context()).Error("database_unavailable", "err", err)
		writeError(w, r, http.StatusInternalServerError, "CATALOG_DB_UNAVAILABLE", "database unavailable", nil)
	default:
		util.LoggerFromContext(r.Context()).Error("catalog_request_failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error", nil)
	}
}
