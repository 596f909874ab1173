// Package imagesize resolves the pixel dimensions of <img> sources.
//
// Sources may be data: URIs, absolute http(s) URLs, or paths. Paths are read
// from a document root when one is configured, otherwise they are resolved
// against a base URL and fetched. Only the image header is decoded.
package imagesize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	// Decoders for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gaurav-prasanna/amppipe/core"
	"github.com/gaurav-prasanna/amppipe/core/fetch"
)

// DefaultMaxBytes caps remote image downloads.
const DefaultMaxBytes = 10 << 20

// Resolver errors.
var (
	ErrUnsupported = errors.New("unsupported image source")
	ErrNotFound    = errors.New("image not found")
	ErrDecode      = errors.New("cannot read image dimensions")
)

// ByteFetcher downloads a resource body. *fetch.HTTPFetcher implements it.
type ByteFetcher interface {
	FetchBytes(ctx context.Context, url string, limit int64) ([]byte, error)
}

// Config configures a Resolver.
type Config struct {
	// Root is the directory relative and root-relative paths are read from.
	Root string
	// BaseURL resolves relative paths to remote URLs when Root is empty.
	BaseURL string
	// MaxBytes caps remote downloads. Zero means DefaultMaxBytes.
	MaxBytes int64
	// Fetcher downloads remote images. Nil means fetch.New().
	Fetcher ByteFetcher
	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// Resolver implements core.ImageResolver.
type Resolver struct {
	root     string
	base     *url.URL
	maxBytes int64
	fetcher  ByteFetcher
	logger   *slog.Logger
}

var _ core.ImageResolver = (*Resolver)(nil)

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	r := &Resolver{
		root:     cfg.Root,
		maxBytes: cfg.MaxBytes,
		fetcher:  cfg.Fetcher,
		logger:   cfg.Logger,
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		r.base = base
	}
	if r.maxBytes <= 0 {
		r.maxBytes = DefaultMaxBytes
	}
	if r.fetcher == nil {
		r.fetcher = fetch.New()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// Resolve returns the dimensions of the image at src.
func (r *Resolver) Resolve(ctx context.Context, src string) (core.Size, error) {
	src = strings.TrimSpace(src)
	lower := strings.ToLower(src)

	var (
		size core.Size
		err  error
	)
	switch {
	case src == "":
		err = ErrUnsupported
	case strings.HasPrefix(lower, "data:"):
		size, err = fromDataURI(src)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		size, err = r.fromURL(ctx, src)
	case strings.HasPrefix(src, "//"):
		size, err = r.fromURL(ctx, r.scheme()+":"+src)
	case r.root != "":
		size, err = r.fromFile(src)
	case r.base != nil:
		size, err = r.fromRelative(ctx, src)
	default:
		err = fmt.Errorf("%w: relative path %q without root or base URL", ErrUnsupported, src)
	}

	if err != nil {
		return core.Size{}, err
	}
	r.logger.Debug("resolved image size", "src", abbreviate(src), "width", size.Width, "height", size.Height)
	return size, nil
}

func (r *Resolver) scheme() string {
	if r.base != nil && r.base.Scheme != "" {
		return r.base.Scheme
	}
	return "https"
}

func (r *Resolver) fromURL(ctx context.Context, rawURL string) (core.Size, error) {
	body, err := r.fetcher.FetchBytes(ctx, rawURL, r.maxBytes)
	if err != nil {
		return core.Size{}, err
	}
	return decode(bytes.NewReader(body))
}

func (r *Resolver) fromRelative(ctx context.Context, src string) (core.Size, error) {
	ref, err := url.Parse(src)
	if err != nil {
		return core.Size{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return r.fromURL(ctx, r.base.ResolveReference(ref).String())
}

// fromFile reads src below the root. Cleaning against "/" keeps ".."
// segments from leaving the root.
func (r *Resolver) fromFile(src string) (core.Size, error) {
	ref, err := url.Parse(src)
	if err != nil {
		return core.Size{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if ref.Scheme != "" && ref.Scheme != "file" {
		return core.Size{}, fmt.Errorf("%w: scheme %q", ErrUnsupported, ref.Scheme)
	}

	name := filepath.Join(r.root, filepath.FromSlash(path.Clean("/"+ref.Path)))
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Size{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return core.Size{}, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	return decode(bufio.NewReader(f))
}

func decode(r io.Reader) (core.Size, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return core.Size{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return core.Size{Width: cfg.Width, Height: cfg.Height}, nil
}

func abbreviate(src string) string {
	const max = 80
	if len(src) <= max {
		return src
	}
	return src[:max] + "..."
}
