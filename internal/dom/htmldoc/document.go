// internal/dom/htmldoc/document.go
//
// Package htmldoc implements the dom.Page capability over a parsed HTML tree. It has no
// layout engine: geometry comes from inline width/height declarations (with a default box
// for everything else) and visibility from inline styles and the hidden attribute, which is
// enough to drive the resolver and healer deterministically in tests and from the CLI.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

// Interaction is one action applied to the document.
type Interaction struct {
	Action string
	Path   string
	Value  string
}

// Document is a mutable, in-memory HTML document.
type Document struct {
	mu           sync.Mutex
	doc          *goquery.Document
	interactions []Interaction
}

var _ dom.Page = (*Document)(nil)

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// MustParse is ParseString for fixtures; it panics on error.
func MustParse(s string) *Document {
	d, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// compile parses a CSS selector, mapping syntax errors onto dom.ErrInvalidSelector.
func compile(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("%w: empty selector", dom.ErrInvalidSelector)
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", dom.ErrInvalidSelector, selector, err)
	}
	return sel, nil
}

// QuerySelector implements dom.Document.
func (d *Document) QuerySelector(ctx context.Context, selector string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	match := d.doc.FindMatcher(sel).First()
	if match.Length() == 0 {
		return nil, nil
	}
	return d.wrap(match.Get(0)), nil
}

// QuerySelectorAll implements dom.Document.
func (d *Document) QuerySelectorAll(ctx context.Context, selector string) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dom.Element
	d.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s.Get(0)))
	})
	return out, nil
}

// FindByText implements dom.Document. It first asks XPath for an element whose own text
// contains text, then falls back to a tree-order scan over full text content for text
// split across inline children.
func (d *Document) FindByText(ctx context.Context, text string) (dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	root := d.doc.Get(0)
	nodes, err := htmlquery.QueryAll(root, fmt.Sprintf("//*[contains(text(), %s)]", xpathLiteral(text)))
	if err == nil {
		for _, node := range nodes {
			if rendered(node) {
				return d.wrap(node), nil
			}
		}
	}

	found := deepestContaining(root, text)
	if found == nil {
		return nil, nil
	}
	return d.wrap(found), nil
}

// deepestContaining walks down from n along the first rendered child whose text content
// contains text, so the result is the innermost match rather than <html>.
func deepestContaining(n *html.Node, text string) *html.Node {
	if !strings.Contains(renderedText(n), text) {
		return nil
	}
	var match *html.Node
	for cur := n; cur != nil; {
		if cur.Type == html.ElementNode {
			match = cur
		}
		var next *html.Node
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode && c.Type != html.DocumentNode {
				continue
			}
			if rendered(c) && strings.Contains(renderedText(c), text) {
				next = c
				break
			}
		}
		cur = next
	}
	return match
}

// Interactions returns a copy of the actions applied so far.
func (d *Document) Interactions() []Interaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Interaction, len(d.interactions))
	copy(out, d.interactions)
	return out
}

// HTML renders the current state of the document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.doc.Get(0)); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{node: n}
}

func (d *Document) record(action string, el *Element, value string) {
	d.interactions = append(d.interactions, Interaction{Action: action, Path: nodePath(el.node), Value: value})
}

// renderedText is the text content of n without the text of unrendered descendants.
func renderedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && unrendered[strings.ToLower(n.Data)]:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
