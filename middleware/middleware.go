// Package middleware serves AMP versions of HTML pages from any net/http
// handler. Requests whose first path segment is "amp" go to the wrapped
// handler as usual; its HTML response is buffered and converted before it
// reaches the client.
package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gaurav-prasanna/amppipe/core"
	"github.com/gaurav-prasanna/amppipe/core/amp"
)

type options struct {
	segment     string
	stripPrefix bool
	logger      *slog.Logger
}

// Option configures the middleware.
type Option func(*options)

// WithSegment sets the first path segment that triggers conversion.
func WithSegment(segment string) Option {
	return func(o *options) {
		if segment != "" {
			o.segment = segment
		}
	}
}

// WithStripPrefix makes the wrapped handler see the canonical path, with
// the trigger segment removed.
func WithStripPrefix(strip bool) Option {
	return func(o *options) {
		o.stripPrefix = strip
	}
}

// WithLogger sets the logger for conversion results and failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns middleware that converts AMP-path responses with conv.
func New(conv core.Converter, opts ...Option) func(http.Handler) http.Handler {
	o := &options{
		segment: amp.Segment,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || amp.FirstSegment(r.URL.Path) != o.segment {
				next.ServeHTTP(w, r)
				return
			}

			requestURL := RequestURL(r)
			downstream := downstreamRequest(r, o)

			buf := newBufferedWriter()
			next.ServeHTTP(buf, downstream)

			if !convertible(buf) {
				buf.copyTo(w, buf.body.Bytes())
				return
			}

			start := time.Now()
			out, err := conv.Convert(r.Context(), buf.body.String(), requestURL)
			if err != nil {
				o.logger.Error("AMP conversion failed", "url", requestURL, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			o.logger.Debug("AMP conversion done",
				"url", requestURL,
				"in_bytes", buf.body.Len(),
				"out_bytes", len(out),
				"duration", time.Since(start),
			)

			if buf.header.Get("Content-Type") == "" {
				buf.header.Set("Content-Type", "text/html; charset=utf-8")
			}
			buf.copyTo(w, []byte(out))
		})
	}
}

// RequestURL rebuilds the absolute URL the client asked for. The scheme
// comes from TLS or X-Forwarded-Proto; query and fragment are omitted.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.EscapedPath()
}

// downstreamRequest clones r without Accept-Encoding, so the body arrives
// uncompressed, and optionally removes the trigger segment.
func downstreamRequest(r *http.Request, o *options) *http.Request {
	r2 := r.Clone(r.Context())
	r2.Header.Del("Accept-Encoding")
	if o.stripPrefix {
		r2.URL.Path = amp.TrimLeadingSegment(r.URL.Path, o.segment)
		if r.URL.RawPath != "" {
			r2.URL.RawPath = amp.TrimLeadingSegment(r.URL.RawPath, o.segment)
		}
		r2.RequestURI = r2.URL.RequestURI()
	}
	return r2
}

// convertible reports whether the buffered response is an uncompressed
// successful HTML page.
func convertible(buf *bufferedWriter) bool {
	if buf.status < 200 || buf.status > 299 || buf.status == http.StatusNoContent {
		return false
	}
	if enc := buf.header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return false
	}
	ct := buf.header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "text/html"
}

// copyTo sends the buffered status and headers with body to w.
func (b *bufferedWriter) copyTo(w http.ResponseWriter, body []byte) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	dst.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(b.status)
	_, _ = w.Write(body)
}
