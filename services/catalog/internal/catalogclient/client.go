// Package catalogclient calls the catalog HTTP API. The CLI uses it to talk to
// a running server.
package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stocktake/pkg/domain"
)

// Client calls the catalog service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a catalog error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Snapshot is the response of POST /snapshots.
type Snapshot struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewClient constructs a catalog client. A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) ListBooks(ctx context.Context) ([]domain.Book, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/books/", nil)
	if err != nil {
		return nil, err
	}
	books := []domain.Book{}
	if err := c.do(req, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) CreateBook(ctx context.Context, title, author, status string) (domain.Book, error) {
	payload, err := json.Marshal(map[string]string{
		"title":  title,
		"author": author,
		"status": status,
	})
	if err != nil {
		return domain.Book{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/books/", bytes.NewReader(payload))
	if err != nil {
		return domain.Book{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var book domain.Book
	if err := c.do(req, &book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// DeleteBook returns the server's confirmation message.
func (c *Client) DeleteBook(ctx context.Context, id int64) (string, error) {
	path := fmt.Sprintf("%s/books/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) BookHistory(ctx context.Context, id int64) ([]domain.BookEvent, error) {
	path := fmt.Sprintf("%s/books/%d/history", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var events []domain.BookEvent
	if err := c.do(req, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snapshots", nil)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := c.do(req, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
