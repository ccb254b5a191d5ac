// internal/dom/htmldoc/actions.go
package htmldoc

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-heal/internal/dom"
)

func (d *Document) own(el dom.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.node == nil {
		return nil, fmt.Errorf("element %T does not belong to an html document", el)
	}
	return e, nil
}

// Click records a click. Checkboxes toggle and radios become the checked member of their group.
func (d *Document) Click(ctx context.Context, el dom.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := d.own(el)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch dom.ClassifyField(e) {
	case dom.FieldCheckbox:
		if _, checked := attr(e.node, "checked"); checked {
			removeAttr(e.node, "checked")
		} else {
			setAttr(e.node, "checked", "")
		}
	case dom.FieldRadio:
		d.checkRadio(e.node)
	}
	d.record("click", e, "")
	return nil
}

// Type replaces the element's value with text.
func (d *Document) Type(ctx context.Context, el dom.Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := d.own(el)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.EqualFold(e.node.Data, "textarea") {
		for c := e.node.FirstChild; c != nil; {
			next := c.NextSibling
			e.node.RemoveChild(c)
			c = next
		}
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	} else {
		setAttr(e.node, "value", text)
	}
	d.record("type", e, text)
	return nil
}

// Select marks the option whose value (or, lacking one, text) equals value as selected.
func (d *Document) Select(ctx context.Context, el dom.Element, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := d.own(el)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	options := htmlquery.Find(e.node, ".//option")
	var chosen *html.Node
	for _, opt := range options {
		v, ok := attr(opt, "value")
		if !ok {
			v = strings.TrimSpace(htmlquery.InnerText(opt))
		}
		if v == value {
			chosen = opt
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("option %q not found in %s", value, nodePath(e.node))
	}
	for _, opt := range options {
		removeAttr(opt, "selected")
	}
	setAttr(chosen, "selected", "")
	d.record("select", e, value)
	return nil
}

// SetChecked sets the checked state of a checkbox or radio.
func (d *Document) SetChecked(ctx context.Context, el dom.Element, checked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := d.own(el)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case checked && dom.ClassifyField(e) == dom.FieldRadio:
		d.checkRadio(e.node)
	case checked:
		setAttr(e.node, "checked", "")
	default:
		removeAttr(e.node, "checked")
	}
	d.record("check", e, fmt.Sprintf("%t", checked))
	return nil
}

func (d *Document) checkRadio(n *html.Node) {
	if name, ok := attr(n, "name"); ok && name != "" {
		for _, other := range htmlquery.Find(d.doc.Get(0), "//input[@type='radio']") {
			if otherName, _ := attr(other, "name"); otherName == name {
				removeAttr(other, "checked")
			}
		}
	}
	setAttr(n, "checked", "")
}
