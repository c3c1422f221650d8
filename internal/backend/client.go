// Package backend is the boundary to the fleet backend API. Every call returns
// a Result; transport and HTTP failures never escape as Go errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const maxBodyBytes = 16 << 20

// Result is the uniform outcome of a backend call.
type Result struct {
	Success bool
	Data    []Record
	Message string
	Status  int
}

// Observer receives per-call measurements.
type Observer interface {
	ObserveBackend(endpoint, outcome string, elapsed time.Duration)
}

// Client calls the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	table      Table
	observer   Observer
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each call. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTable replaces the endpoint table.
func WithTable(t Table) Option {
	return func(c *Client) {
		if t != nil {
			c.table = t
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New constructs a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		table:      DefaultTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints exposes the endpoint table.
func (c *Client) Endpoints() Table {
	return c.table
}

// FetchNamed looks up name in the endpoint table and fetches it.
func (c *Client) FetchNamed(ctx context.Context, name string) Result {
	ep, err := c.table.Lookup(name)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return c.Fetch(ctx, ep)
}

// Fetch issues one GET for ep and normalizes the list payload.
func (c *Client) Fetch(ctx context.Context, ep Endpoint) Result {
	status, body, err := c.do(ctx, ep.Name, http.MethodGet, ep.Path, nil)
	if err != nil {
		return c.failure(ep.Name, status, body, err)
	}
	data, nerr := Normalize(body, ep.Keys)
	if nerr != nil {
		c.logWarn("backend payload not json", slog.String("endpoint", ep.Name), slog.Any("error", nerr))
	}
	return Result{Success: true, Data: data, Status: status}
}

// Send issues a mutating request with an optional JSON body. A JSON object
// response becomes the single element of Data; an array is normalized.
func (c *Client) Send(ctx context.Context, method, path string, payload any) Result {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return Result{Success: false, Message: fmt.Sprintf("encode request: %v", err)}
		}
		body = bytes.NewReader(buf)
	}
	label := method + " " + routeLabel(path)
	status, respBody, err := c.do(ctx, label, method, path, body)
	if err != nil {
		return c.failure(label, status, respBody, err)
	}
	res := Result{Success: true, Status: status}
	var decoded any
	if len(bytes.TrimSpace(respBody)) > 0 && json.Unmarshal(respBody, &decoded) == nil {
		switch v := decoded.(type) {
		case map[string]any:
			res.Data = []Record{Record(v)}
			if msg, ok := v["message"].(string); ok {
				res.Message = msg
			}
		case []any:
			res.Data = fromArray(v)
		}
	}
	return res
}

// JoinError reports the constituent that failed a joined fetch.
type JoinError struct {
	Endpoint string
	Message  string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// FetchAll fetches every endpoint concurrently. The results are returned in
// argument order only when all of them succeed; the first failure fails the
// whole join.
func (c *Client) FetchAll(ctx context.Context, eps ...Endpoint) ([]Result, error) {
	results := make([]Result, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range eps {
		g.Go(func() error {
			res := c.Fetch(gctx, ep)
			if !res.Success {
				return &JoinError{Endpoint: ep.Name, Message: res.Message}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.code)
}

func (c *Client) do(ctx context.Context, label, method, path string, body io.Reader) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	outcome := "failure"
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackend(label, outcome, time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, data, statusError{code: resp.StatusCode}
	}
	outcome = "success"
	return resp.StatusCode, data, nil
}

func (c *Client) failure(label string, status int, body []byte, err error) Result {
	msg := messageFromBody(body)
	if msg == "" {
		msg = err.Error()
	}
	c.logWarn("backend call failed", slog.String("endpoint", label), slog.Int("status", status), slog.String("message", msg))
	return Result{Success: false, Message: msg, Status: status}
}

func (c *Client) logWarn(msg string, attrs ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, attrs...)
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}

// routeLabel strips identifiers and query strings so metric labels stay bounded.
func routeLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p != "" && strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
