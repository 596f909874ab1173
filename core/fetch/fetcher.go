// Package fetch implements the Fetcher interface.
// It performs HTTP GET requests for pages and image bytes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gaurav-prasanna/amppipe/core"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "amppipe/1.0 (+https://github.com/gaurav-prasanna/amppipe)"
)

// Fetch errors.
var (
	ErrStatus   = errors.New("unexpected status")
	ErrTooLarge = errors.New("response body too large")
)

// HTTPFetcher fetches resources via HTTP.
type HTTPFetcher struct {
	client *resty.Client
}

// Option configures an HTTPFetcher.
type Option func(*resty.Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *resty.Client) {
		if ua != "" {
			c.SetHeader("User-Agent", ua)
		}
	}
}

// New creates an HTTPFetcher with a sensible timeout.
func New(opts ...Option) *HTTPFetcher {
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", defaultUserAgent)
	for _, opt := range opts {
		opt(client)
	}
	return &HTTPFetcher{client: client}
}

// Fetch retrieves the HTML content of the given URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*core.FetchResult, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w %d for %s", ErrStatus, resp.StatusCode(), url)
	}

	return &core.FetchResult{
		URL:         url,
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		HTML:        string(resp.Body()),
	}, nil
}

// FetchBytes retrieves at most limit bytes from url. A larger body fails
// with ErrTooLarge. limit <= 0 means no limit.
func (f *HTTPFetcher) FetchBytes(ctx context.Context, url string, limit int64) ([]byte, error) {
	req := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*,*/*;q=0.8")
	if limit > 0 {
		req.SetResponseBodyLimit(int(limit))
	}

	resp, err := req.Get(url)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w %d for %s", ErrStatus, resp.StatusCode(), url)
	}
	return resp.Body(), nil
}
