package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
)

const (
	convertPath = "/forms/chromium/convert/html"
	healthPath  = "/health"
)

// Client talks to a Gotenberg instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	fields     map[string]string
}

// Option tunes a Client.
type Option func(*Client)

// WithLandscape prints pages landscape, which suits wide report tables.
func WithLandscape() Option {
	return func(c *Client) { c.fields["landscape"] = "true" }
}

// NewClient targets baseURL. Pages are A4 with inline SVG charts, so a short
// settle delay is enough before printing.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		fields: map[string]string{
			"waitDelay":       "500ms",
			"printBackground": "true",
			"paperWidth":      "8.27",
			"paperHeight":     "11.7",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping reports whether Gotenberg answers its health route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: gotenberg health %d", httpx.ErrUpstream, resp.StatusCode)
	}
	return nil
}

// RenderHTML converts one HTML document into PDF bytes.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}
	body, contentType, err := c.form(html)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+convertPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: gotenberg response %d: %s", httpx.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) form(html string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, "", err
	}
	for name, value := range c.fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
