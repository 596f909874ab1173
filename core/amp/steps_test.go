package amp

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/amppipe/core"
	"github.com/gaurav-prasanna/amppipe/core/document"
)

const testURL = "https://example.com/amp/page"

var errNoImage = errors.New("no such image")

func stubResolver(sizes map[string]core.Size) core.ImageResolver {
	return core.ImageResolverFunc(func(_ context.Context, src string) (core.Size, error) {
		if s, ok := sizes[src]; ok {
			return s, nil
		}
		return core.Size{}, errNoImage
	})
}

func newEnv(doc *document.Document) *Env {
	return &Env{
		Doc:        doc,
		RequestURL: testURL,
		Images:     stubResolver(nil),
		Logger:     slog.New(slog.DiscardHandler),
	}
}

// apply parses src and runs one step over it.
func apply(t *testing.T, step func(context.Context, *Env) error, src string) *document.Document {
	t.Helper()
	doc := document.Parse(src)
	require.NoError(t, step(context.Background(), newEnv(doc)))
	return doc
}

func innerHTML(t *testing.T, sel *goquery.Selection) string {
	t.Helper()
	out, err := sel.Html()
	require.NoError(t, err)
	return out
}

func TestMarkAMP(t *testing.T) {
	doc := apply(t, markAMP, `<html lang="en"><head></head><body></body></html>`)

	html := doc.Find("html")
	_, ok := html.Attr("amp")
	assert.True(t, ok)
	assert.Equal(t, "en", html.AttrOr("lang", ""))

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, `<html lang="en" amp=""><head></head><body></body></html>`, out)

	value, ok := document.Parse(out).Find("html").Attr("amp")
	assert.True(t, ok)
	assert.Empty(t, value, "amp=\"\" parses as a bare boolean attribute")
}

func TestEnsureCharset(t *testing.T) {
	tests := []struct {
		name string
		head string
		want string
	}{
		{
			name: "missing charset is appended",
			head: `<title>T</title>`,
			want: `<title>T</title><meta charset="utf-8"/>`,
		},
		{
			name: "existing charset is overwritten in place",
			head: `<meta charset="iso-8859-1"><title>T</title>`,
			want: `<meta charset="utf-8"/><title>T</title>`,
		},
		{
			name: "duplicates are collapsed",
			head: `<meta charset="latin1"><title>T</title><meta charset="utf-16">`,
			want: `<meta charset="utf-8"/><title>T</title>`,
		},
		{
			name: "other meta tags are untouched",
			head: `<meta name="author" content="me">`,
			want: `<meta name="author" content="me"/><meta charset="utf-8"/>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := apply(t, ensureCharset, `<html><head>`+tt.head+`</head><body></body></html>`)
			assert.Equal(t, tt.want, innerHTML(t, doc.Find("head")))
		})
	}
}

func TestEnsureCharset_Idempotent(t *testing.T) {
	doc := document.Parse(`<html><head><meta charset="windows-1252"></head><body></body></html>`)
	env := newEnv(doc)

	require.NoError(t, ensureCharset(context.Background(), env))
	require.NoError(t, ensureCharset(context.Background(), env))

	metas := doc.Find("meta[charset]")
	require.Equal(t, 1, metas.Length())
	assert.Equal(t, "utf-8", metas.AttrOr("charset", ""))
}

func TestInjectRuntimeScript(t *testing.T) {
	doc := document.Parse(`<html><head></head><body></body></html>`)
	env := newEnv(doc)

	require.NoError(t, injectRuntimeScript(context.Background(), env))
	assert.Equal(t,
		`<script async="" src="https://cdn.ampproject.org/v0.js"></script>`,
		innerHTML(t, doc.Find("head")))

	require.NoError(t, injectRuntimeScript(context.Background(), env))
	assert.Equal(t, 2, doc.Find(`head script[src="`+RuntimeScriptURL+`"]`).Length())
}

func TestSetCanonical(t *testing.T) {
	t.Run("appends canonical link", func(t *testing.T) {
		doc := apply(t, setCanonical, `<html><head><title>T</title></head></html>`)
		assert.Equal(t,
			`<title>T</title><link rel="canonical" href="https://example.com/page"/>`,
			innerHTML(t, doc.Find("head")))
	})

	t.Run("replaces an existing canonical link", func(t *testing.T) {
		doc := apply(t, setCanonical, `<html><head><link rel="canonical" href="/old"></head></html>`)
		links := doc.Find(`link[rel="canonical"]`)
		require.Equal(t, 1, links.Length())
		assert.Equal(t, "https://example.com/page", links.AttrOr("href", ""))
	})

	t.Run("missing request URL fails", func(t *testing.T) {
		env := newEnv(document.Parse(""))
		env.RequestURL = ""
		err := setCanonical(context.Background(), env)
		assert.ErrorIs(t, err, ErrMissingURL)
	})

	t.Run("unparsable request URL fails", func(t *testing.T) {
		env := newEnv(document.Parse(""))
		env.RequestURL = "http://exa mple.com/\x7f"
		err := setCanonical(context.Background(), env)
		assert.ErrorIs(t, err, ErrInvalidURL)
	})
}

func TestEnsureViewport(t *testing.T) {
	tests := []struct {
		name string
		head string
		want string
	}{
		{
			name: "missing viewport is appended",
			head: ``,
			want: `<meta name="viewport" content="width=device-width,minimum-scale=1,initial-scale=1"/>`,
		},
		{
			name: "existing viewport content is overwritten",
			head: `<meta name="viewport" content="width=1024">`,
			want: `<meta name="viewport" content="width=device-width,minimum-scale=1,initial-scale=1"/>`,
		},
		{
			name: "viewport without content gets one",
			head: `<meta name="Viewport">`,
			want: `<meta name="Viewport" content="width=device-width,minimum-scale=1,initial-scale=1"/>`,
		},
		{
			name: "duplicate viewports are collapsed",
			head: `<meta name="viewport" content="a"><meta name="viewport" content="b">`,
			want: `<meta name="viewport" content="width=device-width,minimum-scale=1,initial-scale=1"/>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := apply(t, ensureViewport, `<html><head>`+tt.head+`</head></html>`)
			assert.Equal(t, tt.want, innerHTML(t, doc.Find("head")))
		})
	}
}

func TestEnsureViewport_Idempotent(t *testing.T) {
	doc := document.Parse(`<html><head></head></html>`)
	env := newEnv(doc)

	require.NoError(t, ensureViewport(context.Background(), env))
	require.NoError(t, ensureViewport(context.Background(), env))

	assert.Equal(t, 1, doc.Find(`meta[name="viewport"]`).Length())
}

func TestInjectBoilerplate(t *testing.T) {
	doc := apply(t, injectBoilerplate, `<html><head><title>T</title></head></html>`)

	want := `<title>T</title>` +
		`<style amp-boilerplate="">` + BoilerplateCSS + `</style>` +
		`<noscript><style amp-boilerplate="">` + NoscriptBoilerplateCSS + `</style></noscript>`
	assert.Equal(t, want, innerHTML(t, doc.Find("head")))
}

func TestStripScripts(t *testing.T) {
	src := `<html><head>
<script type="application/ld+json">{"@type":"Article"}</script>
<script>alert(1)</script>
<script async src="https://cdn.ampproject.org/v0.js"></script>
</head><body>
<script type="text/javascript" src="/app.js"></script>
<script type="module">import x from "y"</script>
<script type=" Application/LD+JSON ">{}</script>
<div><script src="/nested.js"></script></div>
</body></html>`

	doc := apply(t, stripScripts, src)

	scripts := doc.Find("script")
	require.Equal(t, 2, scripts.Length())
	assert.Equal(t, "application/ld+json", scripts.Eq(0).AttrOr("type", ""))
	assert.Equal(t, " Application/LD+JSON ", scripts.Eq(1).AttrOr("type", ""))
	assert.Equal(t, 1, doc.Find("div").Length())
}

func TestStripScripts_KeepsInjected(t *testing.T) {
	doc := document.Parse(`<html><head>
<script src="https://cdn.ampproject.org/v0.js"></script>
<script type="text/javascript" src="https://cdn.ampproject.org/tracker.js"></script>
</head><body></body></html>`)
	env := newEnv(doc)

	require.NoError(t, injectRuntimeScript(context.Background(), env))
	require.NoError(t, stripScripts(context.Background(), env))

	scripts := doc.Find("script")
	require.Equal(t, 1, scripts.Length())
	assert.Equal(t, RuntimeScriptURL, scripts.AttrOr("src", ""))
	_, async := scripts.Attr("async")
	assert.True(t, async, "the surviving script is the injected one")
}

func TestStripStylesheetDefer(t *testing.T) {
	doc := apply(t, stripStylesheetDefer, `<html><head>
<link rel="stylesheet" href="a.css" defer>
<link rel="preload stylesheet" href="b.css" defer>
<link rel="preload" href="c.woff" defer>
</head></html>`)

	links := doc.Find("link")
	_, deferA := links.Eq(0).Attr("defer")
	_, deferB := links.Eq(1).Attr("defer")
	_, deferC := links.Eq(2).Attr("defer")
	assert.False(t, deferA)
	assert.False(t, deferB)
	assert.True(t, deferC, "non-stylesheet links keep defer")
	assert.Equal(t, "a.css", links.Eq(0).AttrOr("href", ""))
}

func TestCleanAttributes(t *testing.T) {
	doc := apply(t, cleanAttributes, `<body>
<div id="a" class="b" style="color:red" onclick="x()" data-role="menu">
  <button id="c" type="submit" onclick="y()" disabled>Go</button>
</div>
<span onclick="z()">kept</span>
</body>`)

	div := doc.Find("div")
	require.Equal(t, 1, div.Length())
	assert.Len(t, div.Nodes[0].Attr, 3)
	assert.Equal(t, "a", div.AttrOr("id", ""))
	assert.Equal(t, "b", div.AttrOr("class", ""))
	assert.Equal(t, "color:red", div.AttrOr("style", ""))

	button := doc.Find("button")
	assert.Len(t, button.Nodes[0].Attr, 2)
	assert.Equal(t, "submit", button.AttrOr("type", ""))

	_, ok := doc.Find("span").Attr("onclick")
	assert.True(t, ok, "other elements are untouched")
}

func TestKeepOnlyAttributes(t *testing.T) {
	n := document.NewElement("div",
		document.Attr("a", "1"),
		document.Attr("b", "2"),
		document.Attr("c", "3"),
		document.Attr("d", "4"),
	)
	removed := keepOnlyAttributes(n, []string{"b", "d"})
	assert.Equal(t, 2, removed)
	assert.Equal(t, "b", n.Attr[0].Key)
	assert.Equal(t, "d", n.Attr[1].Key)
}

func TestReplaceImages(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "resolved size is set",
			body: `<img src="a.png">`,
			want: `<amp-img src="a.png" layout="responsive" width="100" height="50"></amp-img>`,
		},
		{
			name: "unresolved size is left unset",
			body: `<img src="missing.png">`,
			want: `<amp-img src="missing.png" layout="responsive"></amp-img>`,
		},
		{
			name: "loading is dropped and other attributes are kept",
			body: `<img src="a.png" alt="A" loading="lazy" class="hero">`,
			want: `<amp-img src="a.png" alt="A" class="hero" layout="responsive" width="100" height="50"></amp-img>`,
		},
		{
			name: "resolved size overrides authored size",
			body: `<img src="a.png" width="10" height="10">`,
			want: `<amp-img src="a.png" width="100" height="50" layout="responsive"></amp-img>`,
		},
		{
			name: "image without src is still replaced",
			body: `<img alt="none">`,
			want: `<amp-img alt="none" layout="responsive"></amp-img>`,
		},
		{
			name: "nested images keep their position",
			body: `<p>a<img src="a.png">b</p><div><img src="b.png"></div>`,
			want: `<p>a<amp-img src="a.png" layout="responsive" width="100" height="50"></amp-img>b</p>` +
				`<div><amp-img src="b.png" layout="responsive" width="20" height="30"></amp-img></div>`,
		},
	}

	resolver := stubResolver(map[string]core.Size{
		"a.png": {Width: 100, Height: 50},
		"b.png": {Width: 20, Height: 30},
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := document.Parse(`<html><head></head><body>` + tt.body + `</body></html>`)
			env := newEnv(doc)
			env.Images = resolver

			require.NoError(t, replaceImages(context.Background(), env))
			assert.Equal(t, 0, doc.Find("img").Length())
			assert.Equal(t, tt.want, innerHTML(t, doc.Find("body")))
		})
	}
}

func TestReplaceImages_ResolverSeesEveryImage(t *testing.T) {
	var seen []string
	resolver := core.ImageResolverFunc(func(_ context.Context, src string) (core.Size, error) {
		seen = append(seen, src)
		return core.Size{}, errNoImage
	})

	doc := document.Parse(`<img src="1.png"><img src="2.png"><img src="3.png">`)
	env := newEnv(doc)
	env.Images = resolver

	require.NoError(t, replaceImages(context.Background(), env))
	assert.Equal(t, []string{"1.png", "2.png", "3.png"}, seen)
	assert.Equal(t, 3, doc.Find("amp-img").Length())
}

func TestConvertForms(t *testing.T) {
	t.Run("actions move to action-xhr and the script is added once", func(t *testing.T) {
		doc := apply(t, convertForms, `<html><head></head><body>
<form action="/submit" method="post"></form>
<form action="/search"></form>
</body></html>`)

		forms := doc.Find("form")
		require.Equal(t, 2, forms.Length())
		for i, want := range []string{"/submit", "/search"} {
			_, hasAction := forms.Eq(i).Attr("action")
			assert.False(t, hasAction)
			assert.Equal(t, want, forms.Eq(i).AttrOr("action-xhr", ""))
		}

		scripts := doc.Find(`head script[custom-element="amp-form"]`)
		require.Equal(t, 1, scripts.Length())
		assert.Equal(t, FormScriptURL, scripts.AttrOr("src", ""))
		_, async := scripts.Attr("async")
		assert.True(t, async)
	})

	t.Run("exact form markup", func(t *testing.T) {
		doc := apply(t, convertForms, `<html><head></head><body><form action="/submit"></form></body></html>`)
		assert.Equal(t, `<form action-xhr="/submit"></form>`, innerHTML(t, doc.Find("body")))
	})

	t.Run("no forms means no script", func(t *testing.T) {
		doc := apply(t, convertForms, `<html><head></head><body><p>x</p></body></html>`)
		assert.Equal(t, 0, doc.Find("script").Length())
	})

	t.Run("injected script is recorded", func(t *testing.T) {
		doc := document.Parse(`<html><head></head><body><form action="/a"></form></body></html>`)
		env := newEnv(doc)
		require.NoError(t, convertForms(context.Background(), env))

		script := doc.Find(`script[custom-element="amp-form"]`)
		require.Equal(t, 1, script.Length())
		assert.True(t, env.Injected(script.Get(0)))
	})

	t.Run("form without action is left alone", func(t *testing.T) {
		doc := apply(t, convertForms, `<body><form method="get"></form></body>`)
		form := doc.Find("form")
		_, ok := form.Attr("action-xhr")
		assert.False(t, ok)
		assert.Equal(t, "get", form.AttrOr("method", ""))
	})
}
