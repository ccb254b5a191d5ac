// internal/browser/scripts.go
package browser

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// RefAttribute tags every element handed out by a Page so that later actions can find
// the same node again.
const RefAttribute = "data-heal-ref"

// snapshotLib defines snap(el, ref), which tags el and captures everything dom.Element
// exposes, and xpath(el), which mirrors the ID-anchored paths of the htmldoc package.
const snapshotLib = `
const REF = 'data-heal-ref';
function xpath(el) {
  const parts = [];
  for (let n = el; n && n.nodeType === 1; n = n.parentNode) {
    if (n.id) {
      parts.unshift('//*[@id="' + n.id + '"]');
      return parts.join('/');
    }
    let i = 1;
    for (let s = n.previousElementSibling; s; s = s.previousElementSibling) {
      if (s.tagName === n.tagName) i++;
    }
    parts.unshift(n.tagName.toLowerCase() + '[' + i + ']');
  }
  return '/' + parts.join('/');
}
function snap(el, ref) {
  if (!el.hasAttribute(REF)) el.setAttribute(REF, ref);
  const r = el.getBoundingClientRect();
  const cs = window.getComputedStyle(el);
  const attrs = {};
  for (const a of el.attributes) {
    if (a.name !== REF) attrs[a.name] = a.value;
  }
  return {
    ref: el.getAttribute(REF),
    tag: el.tagName.toLowerCase(),
    id: el.id || '',
    classes: Array.from(el.classList),
    attrs: attrs,
    text: el.textContent || '',
    path: xpath(el),
    disabled: el.disabled === true || el.closest('fieldset[disabled]') !== null,
    box: {x: r.x, y: r.y, width: r.width, height: r.height},
    style: {display: cs.display, visibility: cs.visibility, opacity: cs.opacity, pointerEvents: cs.pointerEvents}
  };
}
`

const queryTemplate = `(function(sel, all, prefix) {
%s
  let nodes;
  try {
    nodes = all ? Array.from(document.querySelectorAll(sel)) : [document.querySelector(sel)].filter(Boolean);
  } catch (e) {
    return JSON.stringify({invalid: true, message: String((e && e.message) || e)});
  }
  return JSON.stringify({elements: nodes.map((el, i) => snap(el, prefix + '-' + i))});
})(%s, %t, %s)`

const textTemplate = `(function(text, prefix) {
%s
  const contains = (n) => (n.textContent || '').includes(text);
  const nodes = document.body ? document.body.querySelectorAll('*') : [];
  for (const el of nodes) {
    if (el.closest('script, style, noscript, template') || !contains(el)) continue;
    if (!Array.from(el.children).some(contains)) {
      return JSON.stringify({elements: [snap(el, prefix + '-0')]});
    }
  }
  return JSON.stringify({elements: []});
})(%s, %s)`

const selectTemplate = `(function(sel, value) {
  const el = document.querySelector(sel);
  if (!el) return 'missing';
  const opts = Array.from(el.options || []);
  const o = opts.find((o) => o.value === value) || opts.find((o) => o.text.trim() === value);
  if (!o) return 'nooption';
  el.value = o.value;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return 'ok';
})(%s, %s)`

const checkTemplate = `(function(sel, want) {
  const el = document.querySelector(sel);
  if (!el) return 'missing';
  if (el.checked !== want) el.click();
  return el.checked === want ? 'ok' : 'unchanged';
})(%s, %t)`

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	out, err := json.MarshalToString(s)
	if err != nil {
		// Strings always encode.
		panic(err)
	}
	return out
}

func queryScript(selector string, all bool, prefix string) string {
	return fmt.Sprintf(queryTemplate, snapshotLib, jsString(selector), all, jsString(prefix))
}

func textScript(text, prefix string) string {
	return fmt.Sprintf(textTemplate, snapshotLib, jsString(text), jsString(prefix))
}

func selectScript(selector, value string) string {
	return fmt.Sprintf(selectTemplate, jsString(selector), jsString(value))
}

func checkScript(selector string, checked bool) string {
	return fmt.Sprintf(checkTemplate, jsString(selector), checked)
}

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%s]`, RefAttribute, jsString(ref))
}
