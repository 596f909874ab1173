// Package crawl discovers the internal pages of a site for whole-site AMP
// conversion. It reads sitemap.xml when the site has one and otherwise
// follows <a href> links breadth-first from the start page.
package crawl

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gaurav-prasanna/amppipe/core"
)

// DefaultMaxPages bounds a crawl when no limit is configured.
const DefaultMaxPages = 100

// urlSet is a <urlset> sitemap.
type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapIndex is a <sitemapindex> listing child sitemaps.
type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Crawler discovers same-domain pages.
type Crawler struct {
	fetcher  core.Fetcher
	maxPages int
	logger   *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMaxPages bounds the number of discovered pages.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets the logger for skipped pages and discovery progress.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Crawler that fetches pages with fetcher.
func New(fetcher core.Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:  fetcher,
		maxPages: DefaultMaxPages,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover finds the canonical pages to convert starting from baseURL.
// It first tries sitemap.xml, then falls back to link crawling. Pages
// already under the AMP path segment are skipped.
func (c *Crawler) Discover(ctx context.Context, baseURL string) ([]string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	domain := parsed.Host

	sitemapURL := fmt.Sprintf("%s://%s/sitemap.xml", parsed.Scheme, domain)
	urls, err := c.fromSitemap(ctx, sitemapURL, domain, 0)
	if err == nil && len(urls) > 0 {
		c.logger.Debug("discovered pages from sitemap", "sitemap", sitemapURL, "pages", len(urls))
		return urls, nil
	}
	if err != nil {
		c.logger.Debug("sitemap unavailable, crawling links", "sitemap", sitemapURL, "error", err)
	}

	return c.fromLinks(ctx, baseURL, domain)
}

// fromSitemap reads a urlset, or a sitemap index one level deep.
func (c *Crawler) fromSitemap(ctx context.Context, sitemapURL, domain string, depth int) ([]string, error) {
	result, err := c.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var index sitemapIndex
	if err := xml.Unmarshal([]byte(result.HTML), &index); err == nil && len(index.Sitemaps) > 0 {
		if depth > 0 {
			return nil, fmt.Errorf("nested sitemap index at %s", sitemapURL)
		}
		queue := NewQueue(c.maxPages)
		for _, sm := range index.Sitemaps {
			urls, err := c.fromSitemap(ctx, strings.TrimSpace(sm.Loc), domain, depth+1)
			if err != nil {
				c.logger.Debug("skipping child sitemap", "sitemap", sm.Loc, "error", err)
				continue
			}
			for _, u := range urls {
				queue.Add(u)
			}
		}
		return queue.All(), nil
	}

	var set urlSet
	if err := xml.Unmarshal([]byte(result.HTML), &set); err != nil {
		return nil, fmt.Errorf("parsing sitemap: %w", err)
	}

	queue := NewQueue(c.maxPages)
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if Convertible(loc, domain) {
			queue.Add(NormalizeURL(loc))
		}
	}
	return queue.All(), nil
}

// fromLinks performs a bounded BFS over internal links.
func (c *Crawler) fromLinks(ctx context.Context, startURL, domain string) ([]string, error) {
	queue := NewQueue(c.maxPages)
	queue.Add(NormalizeURL(startURL))

	for queue.HasNext() {
		if err := ctx.Err(); err != nil {
			return queue.All(), err
		}
		currentURL := queue.Next()

		result, err := c.fetcher.Fetch(ctx, currentURL)
		if err != nil {
			c.logger.Debug("skipping page", "url", currentURL, "error", err)
			continue
		}
		if !isHTML(result.ContentType) {
			continue
		}

		links, err := extractLinks(result.HTML, currentURL)
		if err != nil {
			continue
		}
		for _, link := range links {
			if Convertible(link, domain) {
				queue.Add(NormalizeURL(link))
			}
		}
	}

	return queue.All(), nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
}

// extractLinks extracts all href values from <a> tags, resolving relative URLs.
func extractLinks(html string, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if resolved := resolveURL(href, base); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links, nil
}

// resolveURL resolves a potentially relative URL against a base.
func resolveURL(href string, base *url.URL) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	for _, scheme := range []string{"mailto:", "javascript:", "tel:", "data:"} {
		if strings.HasPrefix(strings.ToLower(href), scheme) {
			return ""
		}
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}
