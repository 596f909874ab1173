package amp

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/amppipe/core/document"
)

var (
	scriptSelector     = cascadia.MustCompile("script")
	stylesheetSelector = cascadia.MustCompile("link[rel]")
	imageSelector      = cascadia.MustCompile("img")
	formSelector       = cascadia.MustCompile("form")
)

// stripScripts removes author JavaScript. Only JSON-LD data blocks and the
// scripts injected earlier in the run are kept. Matches are collected
// before any node is detached.
func stripScripts(_ context.Context, env *Env) error {
	var removable []*html.Node
	for _, n := range env.Doc.Nodes(scriptSelector) {
		if !env.Injected(n) && !isDataScript(n) {
			removable = append(removable, n)
		}
	}
	for _, n := range removable {
		document.Remove(n)
	}

	if len(removable) > 0 {
		env.Logger.Debug("removed scripts", "count", len(removable))
	}
	return nil
}

func isDataScript(n *html.Node) bool {
	typ, ok := document.GetAttr(n, "type")
	if !ok {
		return false
	}
	typ = strings.ToLower(strings.TrimSpace(typ))
	return slices.Contains(allowedScriptTypes, typ)
}

// stripStylesheetDefer drops defer from stylesheet links.
func stripStylesheetDefer(_ context.Context, env *Env) error {
	for _, n := range env.Doc.Nodes(stylesheetSelector) {
		if hasToken(n, "rel", "stylesheet") {
			document.RemoveAttr(n, "defer")
		}
	}
	return nil
}

// cleanAttributes reduces <div> and <button> to their allowed attributes.
func cleanAttributes(_ context.Context, env *Env) error {
	removed := 0
	for _, rule := range attributeAllowList {
		matches := env.Doc.Nodes(func(n *html.Node) bool {
			return document.IsElement(n, rule.tag)
		})
		for _, n := range matches {
			removed += keepOnlyAttributes(n, rule.allowed)
		}
	}

	if removed > 0 {
		env.Logger.Debug("removed attributes", "count", removed)
	}
	return nil
}

// keepOnlyAttributes removes every attribute of n whose name is not in
// allowed and returns how many were removed. Names are collected first so
// the attribute list is not edited while it is being read.
func keepOnlyAttributes(n *html.Node, allowed []string) int {
	var blocked []string
	for _, a := range n.Attr {
		if !slices.Contains(allowed, a.Key) {
			blocked = append(blocked, a.Key)
		}
	}
	for _, key := range blocked {
		document.RemoveAttr(n, key)
	}
	return len(blocked)
}

// replaceImages swaps every <img> for an <amp-img>. The first remaining
// <img> is looked up again after each replacement.
func replaceImages(ctx context.Context, env *Env) error {
	root := env.Doc.Node()
	for img := imageSelector.MatchFirst(root); img != nil; img = imageSelector.MatchFirst(root) {
		document.Replace(img, ampImage(ctx, env, img))
	}
	return nil
}

func ampImage(ctx context.Context, env *Env, img *html.Node) *html.Node {
	ampImg := document.NewElement("amp-img")
	for _, a := range img.Attr {
		if !slices.Contains(blockedImageAttributes, a.Key) {
			ampImg.Attr = append(ampImg.Attr, a)
		}
	}
	document.SetAttr(ampImg, "layout", "responsive")

	src, ok := document.GetAttr(img, "src")
	if !ok || strings.TrimSpace(src) == "" {
		return ampImg
	}

	size, err := env.Images.Resolve(ctx, src)
	if err != nil {
		env.Logger.Debug("image size unknown", "src", src, "error", err)
		return ampImg
	}
	if size.Width > 0 && size.Height > 0 {
		document.SetAttr(ampImg, "width", strconv.Itoa(size.Width))
		document.SetAttr(ampImg, "height", strconv.Itoa(size.Height))
	}
	return ampImg
}

// convertForms moves form actions to action-xhr and injects the amp-form
// extension once per run.
func convertForms(_ context.Context, env *Env) error {
	forms := env.Doc.Nodes(formSelector)
	if len(forms) == 0 {
		return nil
	}

	env.inject(env.Doc.Head(), document.NewElement("script",
		document.Attr("async", ""),
		document.Attr("custom-element", "amp-form"),
		document.Attr("src", FormScriptURL),
	))

	for _, form := range forms {
		action, ok := document.GetAttr(form, "action")
		if !ok {
			continue
		}
		document.SetAttr(form, "action-xhr", action)
		document.RemoveAttr(form, "action")
	}
	return nil
}
