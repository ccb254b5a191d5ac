// internal/dom/htmldoc/element.go
package htmldoc

import (
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

// Default box used when an element declares no inline size.
const (
	defaultWidth  = 100.0
	defaultHeight = 24.0
)

// Tags whose content a browser never lays out.
var unrendered = map[string]bool{
	"head":     true,
	"title":    true,
	"meta":     true,
	"link":     true,
	"base":     true,
	"script":   true,
	"style":    true,
	"template": true,
	"noscript": true,
}

// rendered reports whether n could appear on screen: neither it nor an ancestor is an
// unrendered tag.
func rendered(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && unrendered[strings.ToLower(n.Data)] {
			return false
		}
	}
	return true
}

// Element wraps an html.Node. It reads through to the node, so it reflects mutations
// made by the owning Document.
type Element struct {
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

// Node exposes the underlying node.
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) TagName() string { return strings.ToLower(e.node.Data) }

func (e *Element) ID() string { return htmlquery.SelectAttr(e.node, "id") }

func (e *Element) Classes() []string {
	return strings.Fields(htmlquery.SelectAttr(e.node, "class"))
}

func (e *Element) Attribute(name string) (string, bool) {
	return attr(e.node, name)
}

func (e *Element) Text() string { return htmlquery.InnerText(e.node) }

func (e *Element) Path() string { return nodePath(e.node) }

// Disabled reports a disabled attribute on the element or on an enclosing fieldset.
func (e *Element) Disabled() bool {
	if _, ok := attr(e.node, "disabled"); ok {
		return true
	}
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "fieldset") {
			if _, ok := attr(p, "disabled"); ok {
				return true
			}
		}
	}
	return false
}

// Box returns a zero box when the element or an ancestor is not rendered, otherwise its
// inline px size or the default box.
func (e *Element) Box() (dom.Rect, error) {
	if !rendered(e.node) {
		return dom.Rect{}, nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, hidden := attr(n, "hidden"); hidden {
			return dom.Rect{}, nil
		}
		if decls := inlineStyle(n); decls["display"] == "none" {
			return dom.Rect{}, nil
		}
	}

	decls := inlineStyle(e.node)
	return dom.Rect{
		Width:  pxOr(decls["width"], defaultWidth),
		Height: pxOr(decls["height"], defaultHeight),
	}, nil
}

// Style returns the element's computed style. visibility and pointer-events inherit
// from ancestors, display and opacity do not.
func (e *Element) Style() (dom.Style, error) {
	own := inlineStyle(e.node)
	style := dom.Style{
		Display:       valueOr(own["display"], "block"),
		Opacity:       valueOr(own["opacity"], "1"),
		Visibility:    own["visibility"],
		PointerEvents: own["pointer-events"],
	}
	if _, hidden := attr(e.node, "hidden"); hidden || !rendered(e.node) {
		style.Display = "none"
	}

	for p := e.node.Parent; p != nil && (style.Visibility == "" || style.PointerEvents == ""); p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		decls := inlineStyle(p)
		if style.Visibility == "" {
			style.Visibility = decls["visibility"]
		}
		if style.PointerEvents == "" {
			style.PointerEvents = decls["pointer-events"]
		}
	}
	style.Visibility = valueOr(style.Visibility, "visible")
	style.PointerEvents = valueOr(style.PointerEvents, "auto")
	return style, nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func inlineStyle(n *html.Node) map[string]string {
	raw, ok := attr(n, "style")
	if !ok || raw == "" {
		return map[string]string{}
	}
	return parseInlineStyle(raw)
}

func pxOr(v string, fallback float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	v = strings.TrimSuffix(v, "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
