// Package document parses HTML into a mutable tree and serializes it back.
//
// Parsing follows the HTML5 tree construction algorithm, so malformed markup
// never fails: missing <html>, <head> and <body> elements are inserted and
// unclosed tags are closed. A Document is owned by a single conversion and is
// not safe for concurrent use.
package document

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrRender is returned when the tree cannot be serialized.
var ErrRender = errors.New("rendering HTML failed")

// Document is a parsed HTML tree.
type Document struct {
	doc *goquery.Document
}

// Parse parses s and never fails. If the parser rejects the input, the
// empty <html><head></head><body></body></html> skeleton is returned.
func Parse(s string) *Document {
	d, err := ParseReader(strings.NewReader(s))
	if err != nil {
		return FromNode(skeleton())
	}
	return d
}

// ParseReader parses HTML from r. Only read errors are reported.
func ParseReader(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// FromNode wraps an existing tree. root is normally an html.DocumentNode.
func FromNode(root *html.Node) *Document {
	return &Document{doc: goquery.NewDocumentFromNode(root)}
}

// Node returns the document node at the top of the tree.
func (d *Document) Node() *html.Node {
	return d.doc.Nodes[0]
}

// Selection returns a goquery selection over the whole document.
func (d *Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

// Find returns all elements matching the CSS selector.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// FindMatcher returns all elements matching a precompiled matcher.
func (d *Document) FindMatcher(m goquery.Matcher) *goquery.Selection {
	return d.doc.FindMatcher(m)
}

// Nodes returns every node below the document node for which match is true,
// in document order. The result is a snapshot: mutating the tree afterwards
// does not change it.
func (d *Document) Nodes(match func(*html.Node) bool) []*html.Node {
	return dom.FindAllNodes(d.Node(), match)
}

// Root returns the <html> element, creating one if the tree has none.
func (d *Document) Root() *html.Node {
	for _, child := range dom.AllChildElements(d.Node()) {
		if child.DataAtom == atom.Html {
			return child
		}
	}
	root := NewElement("html")
	d.Node().AppendChild(root)
	return root
}

// HasHead reports whether <html> has a <head> child.
func (d *Document) HasHead() bool {
	return findChild(d.Root(), atom.Head) != nil
}

// Head returns the <head> element. A missing head is synthesized as the
// first child of <html>.
func (d *Document) Head() *html.Node {
	root := d.Root()
	if head := findChild(root, atom.Head); head != nil {
		return head
	}
	head := NewElement("head")
	root.InsertBefore(head, root.FirstChild)
	return head
}

// HTML serializes the tree.
func (d *Document) HTML() (string, error) {
	out, err := goquery.OuterHtml(d.doc.Selection)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return out, nil
}

// Tree renders the node structure for debugging.
func (d *Document) Tree() string {
	return dom.RenderRepresentation(d.Node())
}

func findChild(parent *html.Node, a atom.Atom) *html.Node {
	for _, child := range dom.AllChildElements(parent) {
		if child.DataAtom == a {
			return child
		}
	}
	return nil
}

func skeleton() *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	root := NewElement("html")
	root.AppendChild(NewElement("head"))
	root.AppendChild(NewElement("body"))
	doc.AppendChild(root)
	return doc
}
