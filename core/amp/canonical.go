package amp

import (
	"fmt"
	"net/url"
	"strings"
)

// CanonicalURL returns the URL of the non-AMP page for an AMP request URL.
// The leading "amp" path segment is removed; query and fragment are dropped.
//
//	https://example.com/amp/page?x=1 -> https://example.com/page
//	/amp/articles/5                  -> /articles/5
func CanonicalURL(requestURL string) (string, error) {
	if requestURL == "" {
		return "", ErrMissingURL
	}
	u, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u.Path = TrimLeadingSegment(u.Path, Segment)
	if u.RawPath != "" {
		u.RawPath = TrimLeadingSegment(u.RawPath, Segment)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// TrimLeadingSegment removes segment from the front of p when it is the
// whole first path segment. "/amplify" is left alone for segment "amp".
func TrimLeadingSegment(p, segment string) string {
	rooted := strings.HasPrefix(p, "/")
	first, rest, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	if first != segment {
		return p
	}
	if rooted || rest == "" {
		return "/" + rest
	}
	return rest
}

// FirstSegment returns the first segment of a URL path.
func FirstSegment(p string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	return first
}

// AMPURL returns the AMP request URL for a canonical page URL by adding the
// leading "amp" segment. URLs already under it are returned unchanged.
//
//	https://example.com/page -> https://example.com/amp/page
func AMPURL(canonical string) (string, error) {
	if canonical == "" {
		return "", ErrMissingURL
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if FirstSegment(u.Path) == Segment {
		return u.String(), nil
	}

	u.Path = "/" + Segment + "/" + strings.TrimPrefix(u.Path, "/")
	if u.RawPath != "" {
		u.RawPath = "/" + Segment + "/" + strings.TrimPrefix(u.RawPath, "/")
	}
	return u.String(), nil
}
