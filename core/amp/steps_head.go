package amp

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/amppipe/core/document"
)

var htmlSelector = cascadia.MustCompile("html")

// markAMP flags every <html> element with the boolean amp attribute. The
// renderer writes boolean attributes as amp="", which HTML parses the same
// as a bare attribute.
func markAMP(_ context.Context, env *Env) error {
	for _, n := range env.Doc.Nodes(htmlSelector) {
		document.SetAttr(n, "amp", "")
	}
	return nil
}

// ensureCharset upserts <meta charset="utf-8"> among the head's children.
func ensureCharset(_ context.Context, env *Env) error {
	upsertHeadChild(env.Doc.Head(),
		func(n *html.Node) bool {
			return document.IsElement(n, "meta") && document.HasAttr(n, "charset")
		},
		func(n *html.Node) {
			document.SetAttr(n, "charset", "utf-8")
		},
		func() *html.Node {
			return document.NewElement("meta", document.Attr("charset", "utf-8"))
		},
	)
	return nil
}

// injectRuntimeScript appends the AMP runtime. Running it twice adds two
// scripts. A runtime script already in the page is author markup and is
// removed by strip-scripts.
func injectRuntimeScript(_ context.Context, env *Env) error {
	env.inject(env.Doc.Head(), document.NewElement("script",
		document.Attr("async", ""),
		document.Attr("src", RuntimeScriptURL),
	))
	return nil
}

// setCanonical points the page at its non-AMP original. Canonical links
// already in the head are replaced.
func setCanonical(_ context.Context, env *Env) error {
	href, err := CanonicalURL(env.RequestURL)
	if err != nil {
		return err
	}

	head := env.Doc.Head()
	for _, n := range dom.AllChildElements(head) {
		if document.IsElement(n, "link") && hasToken(n, "rel", "canonical") {
			document.Remove(n)
		}
	}
	head.AppendChild(document.NewElement("link",
		document.Attr("rel", "canonical"),
		document.Attr("href", href),
	))
	return nil
}

// ensureViewport upserts the mandatory viewport meta tag.
func ensureViewport(_ context.Context, env *Env) error {
	upsertHeadChild(env.Doc.Head(),
		func(n *html.Node) bool {
			name, ok := document.GetAttr(n, "name")
			return document.IsElement(n, "meta") && ok && strings.EqualFold(strings.TrimSpace(name), "viewport")
		},
		func(n *html.Node) {
			document.SetAttr(n, "content", Viewport)
		},
		func() *html.Node {
			return document.NewElement("meta", document.Attr("name", "viewport"), document.Attr("content", Viewport))
		},
	)
	return nil
}

// injectBoilerplate appends the amp-boilerplate style and its noscript
// fallback.
func injectBoilerplate(_ context.Context, env *Env) error {
	style := document.NewElement("style", document.Attr("amp-boilerplate", ""))
	style.AppendChild(document.NewText(BoilerplateCSS))

	fallback := document.NewElement("style", document.Attr("amp-boilerplate", ""))
	fallback.AppendChild(document.NewText(NoscriptBoilerplateCSS))
	noscript := document.NewElement("noscript")
	noscript.AppendChild(fallback)

	head := env.Doc.Head()
	head.AppendChild(style)
	head.AppendChild(noscript)
	return nil
}

// upsertHeadChild updates the first direct child of head accepted by match
// and removes later matches. When nothing matches, create() is appended.
func upsertHeadChild(head *html.Node, match func(*html.Node) bool, update func(*html.Node), create func() *html.Node) {
	var found *html.Node
	for _, child := range dom.AllChildElements(head) {
		if !match(child) {
			continue
		}
		if found == nil {
			found = child
			update(child)
			continue
		}
		document.Remove(child)
	}
	if found == nil {
		head.AppendChild(create())
	}
}

// hasToken reports whether the space separated attribute key of n contains
// token, ignoring case.
func hasToken(n *html.Node, key, token string) bool {
	val, ok := document.GetAttr(n, key)
	if !ok {
		return false
	}
	for _, field := range strings.Fields(val) {
		if strings.EqualFold(field, token) {
			return true
		}
	}
	return false
}
