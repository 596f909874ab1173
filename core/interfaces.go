// Package core defines the shared interfaces for amppipe.
// Each collaborator of the AMP pipeline is a small, testable interface.
package core

import "context"

// FetchResult holds the raw body and response metadata from a fetch.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	HTML        string
}

// Size is the pixel size of an image.
type Size struct {
	Width  int
	Height int
}

// Fetcher retrieves raw HTML from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// ImageResolver looks up the pixel dimensions of an image source.
// A non-nil error means the size is unknown; callers treat it as absent data.
type ImageResolver interface {
	Resolve(ctx context.Context, src string) (Size, error)
}

// ImageResolverFunc adapts a plain function to ImageResolver.
type ImageResolverFunc func(ctx context.Context, src string) (Size, error)

// Resolve calls f(ctx, src).
func (f ImageResolverFunc) Resolve(ctx context.Context, src string) (Size, error) {
	return f(ctx, src)
}

// Converter rewrites an HTML document into an AMP document.
// requestURL is the URL the page was requested under (with its /amp prefix).
type Converter interface {
	Convert(ctx context.Context, html string, requestURL string) (string, error)
}
