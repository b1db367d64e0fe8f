// Package remote talks to the HR record API: master-data lists and record creation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hr-bulk-import/internal/reference"
	"hr-bulk-import/internal/telemetry"
)

const (
	fallbackMessage = "record creation failed"
	maxErrorBody    = 64 << 10
)

// Error is a failed remote call. Message is the most specific text available.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Pacer blocks until the next create call may go out.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Client calls the remote API with a static bearer token.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	pacer       Pacer
	createPaths map[string]string
}

// Option customizes a Client.
type Option func(*Client)

// WithPacer throttles Create calls.
func WithPacer(p Pacer) Option {
	return func(c *Client) { c.pacer = p }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCreatePath overrides the create endpoint for an import type.
func WithCreatePath(importType, path string) Option {
	return func(c *Client) { c.createPaths[importType] = path }
}

func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		http:        &http.Client{Timeout: timeout},
		createPaths: map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Create submits one payload. Any failure, including a panic while building or
// sending the request, comes back as *Error. There are no retries.
func (c *Client) Create(ctx context.Context, importType string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Message: fmt.Sprintf("%v", r)}
		}
	}()

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return &Error{Message: fmt.Sprintf("wait for create slot: %v", err)}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Message: fmt.Sprintf("encode payload: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.createPath(importType), bytes.NewReader(body))
	if err != nil {
		return &Error{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	telemetry.CreateLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return &Error{Message: transportMessage(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{StatusCode: resp.StatusCode, Message: extractMessage(raw)}
}

// ListReferences fetches the master-data list for kind, e.g. GET /departments.
func (c *Client) ListReferences(ctx context.Context, kind reference.Kind) ([]reference.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+kind.Plural(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", kind.Plural(), err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Plural(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind.Plural(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list %s: %w", kind.Plural(), &Error{StatusCode: resp.StatusCode, Message: extractMessage(raw)})
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.Plural(), err)
	}
	return entries, nil
}

// FetchReferences loads every kind in one pass, in order.
func (c *Client) FetchReferences(ctx context.Context, kinds []reference.Kind) (map[reference.Kind][]reference.Entry, error) {
	out := make(map[reference.Kind][]reference.Entry, len(kinds))
	for _, k := range kinds {
		entries, err := c.ListReferences(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = entries
	}
	return out, nil
}

func (c *Client) createPath(importType string) string {
	if p, ok := c.createPaths[importType]; ok {
		return p
	}
	return "/" + importType + "s"
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

type entryJSON struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Title string          `json:"title"`
}

func decodeEntries(raw []byte) ([]reference.Entry, error) {
	var list []entryJSON
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Data    []entryJSON `json:"data"`
			Results []entryJSON `json:"results"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, err
		}
		list = wrapped.Data
		if list == nil {
			list = wrapped.Results
		}
	}

	out := make([]reference.Entry, 0, len(list))
	for _, e := range list {
		name := e.Name
		if name == "" {
			name = e.Title
		}
		id := strings.Trim(strings.TrimSpace(string(e.ID)), `"`)
		if id == "" || id == "null" || strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, reference.Entry{ID: id, Name: name})
	}
	return out, nil
}

// extractMessage prefers a server-provided message field, then the raw body.
func extractMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if msg := stringify(body[key]); msg != "" {
				return msg
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallbackMessage
}

// stringify flattens the shapes APIs commonly use for error text.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if s := stringify(t["message"]); s != "" {
			return s
		}
		if s := stringify(t["msg"]); s != "" {
			return s
		}
	}
	return ""
}

func transportMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		if msg := strings.TrimSpace(uerr.Err.Error()); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallbackMessage
}
