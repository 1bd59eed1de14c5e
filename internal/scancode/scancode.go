// Package scancode fetches QR code images for MO identifiers from an HTTP
// code-rendering service.
package scancode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"moledger/internal/models"
)

// DefaultURL is a public QR rendering endpoint taking text and size params.
const DefaultURL = "https://quickchart.io/qr"

// DefaultSize is the requested edge length in pixels.
const DefaultSize = 300

// Renderer produces a scan-code image for text.
type Renderer interface {
	Render(ctx context.Context, text string, size int) ([]byte, error)
}

// HTTPClient calls a QR service as GET {BaseURL}?text=...&size=...
type HTTPClient struct {
	BaseURL    string
	httpClient *http.Client
}

// NewHTTPClient returns a client for baseURL. An empty baseURL uses DefaultURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Render(ctx context.Context, text string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	q := url.Values{}
	q.Set("text", text)
	q.Set("size", strconv.Itoa(size))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build qr request: %v: %w", err, models.ErrExternalService)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qr request: %v: %w", err, models.ErrExternalService)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qr service returned %d: %w", resp.StatusCode, models.ErrExternalService)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read qr image: %v: %w", err, models.ErrExternalService)
	}
	return data, nil
}
