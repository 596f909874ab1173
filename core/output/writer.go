// Package output writes converted AMP pages to disk.
// Single-page conversions get a flat filename derived from the page URL
// (example_com_docs_intro.html). Whole-site conversions mirror the URL path
// (docs/intro.html, with "/" becoming index.html).
package output

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultExt is the extension used for converted pages.
const DefaultExt = ".html"

// Writer writes rendered output to disk.
type Writer struct {
	OutputDir string
}

// New creates a Writer targeting the given output directory.
// If outputDir is empty, it defaults to the current working directory.
func New(outputDir string) (*Writer, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		outputDir = wd
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Writer{OutputDir: outputDir}, nil
}

// WriteOnly writes a single page under a flat name derived from rawURL.
func (w *Writer) WriteOnly(rawURL string, data []byte, ext string) (string, error) {
	return w.write(FlatName(rawURL)+extOrDefault(ext), data)
}

// WriteAll writes a page at the location mirroring rawURL's path.
// Example: https://site.com/docs/intro -> <dir>/docs/intro.html
func (w *Writer) WriteAll(rawURL string, data []byte, ext string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}
	return w.write(filepath.FromSlash(MirrorName(parsed.Path)+extOrDefault(ext)), data)
}

func (w *Writer) write(name string, data []byte) (string, error) {
	fullPath := filepath.Join(w.OutputDir, name)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", fullPath, err)
	}
	return fullPath, nil
}

// MirrorName maps a URL path to a relative slash-separated file name
// without extension. ".." segments cannot climb above the output root.
func MirrorName(urlPath string) string {
	p := path.Clean("/" + urlPath)
	if p == "/" || strings.HasSuffix(urlPath, "/") {
		p = path.Join(p, "index")
	}
	return strings.TrimPrefix(p, "/")
}

// FlatName converts a URL into a flat filename.
// Example: https://example.com/amp/docs/intro -> example_com_amp_docs_intro
func FlatName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return sanitize(rawURL)
	}

	var parts []string
	if parsed.Host != "" {
		parts = append(parts, sanitize(parsed.Host))
	}
	if p := strings.Trim(parsed.Path, "/"); p != "" {
		for _, seg := range strings.Split(p, "/") {
			parts = append(parts, sanitize(seg))
		}
	}
	if len(parts) == 0 {
		return "index"
	}
	return strings.Join(parts, "_")
}

func extOrDefault(ext string) string {
	if ext == "" {
		return DefaultExt
	}
	return ext
}

// sanitize replaces non-alphanumeric characters with underscores.
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
