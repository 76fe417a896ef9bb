// internal/browser/dom.go
package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// indexAttribute tags every interactive element with its snapshot index so that
// later actions can address it with a plain CSS selector.
const indexAttribute = "data-pilot-index"

// interactiveSelector is the set of elements offered to the decision-maker.
const interactiveSelector = `a, button, input, select, textarea, [role=button], [onclick]`

// keptAttributes are copied into InteractiveElement.Attributes when present.
var keptAttributes = []string{
	"id", "name", "type", "href", "placeholder", "aria-label", "role", "title", "alt", "value",
}

// elementScript re-tags the visible interactive elements of the document and returns
// them in document order. Indices are reassigned on every call.
var elementScript = fmt.Sprintf(`(() => {
	const attr = %s;
	const keep = %s;
	document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));
	const out = [];
	for (const el of document.querySelectorAll(%s)) {
		if (el.disabled) continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 && r.height === 0) continue;
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none') continue;
		const index = out.length;
		el.setAttribute(attr, String(index));
		const attributes = {};
		for (const k of keep) {
			const v = el.getAttribute(k);
			if (v) attributes[k] = v;
		}
		const text = (el.innerText || el.value || '').replace(/\s+/g, ' ').trim();
		out.push({
			index: index,
			tag: el.tagName.toLowerCase(),
			attributes: attributes,
			text: text,
			rect: {x: r.x, y: r.y, width: r.width, height: r.height},
		});
	}
	return out;
})()`, jsString(indexAttribute), jsStringArray(keptAttributes), jsString(interactiveSelector))

// mutationScript installs a document-wide mutation counter used by WaitStable.
const mutationScript = `(() => {
	if (window.__pilotMutations !== undefined) return;
	window.__pilotMutations = 0;
	const start = () => {
		new MutationObserver(records => { window.__pilotMutations += records.length; })
			.observe(document.documentElement, {subtree: true, childList: true, attributes: true, characterData: true});
	};
	if (document.documentElement) start(); else document.addEventListener('DOMContentLoaded', start);
})()`

// mutationProbe reports the mutation counter and whether the document finished loading.
const mutationProbe = `({count: window.__pilotMutations || 0, ready: document.readyState === 'complete'})`

// pageTextScript returns the rendered text of the page body.
const pageTextScript = `document.body ? document.body.innerText : ''`

type mutationState struct {
	Count int  `json:"count"`
	Ready bool `json:"ready"`
}

// elementSelector addresses the element tagged with index by the last snapshot.
func elementSelector(index int) string {
	return fmt.Sprintf(`[%s="%d"]`, indexAttribute, index)
}

// existsScript reports whether the element tagged with index is still attached.
func existsScript(index int) string {
	return selectorExistsScript(elementSelector(index))
}

// selectorExistsScript reports whether selector matches any element.
func selectorExistsScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
}

// normalizeElements truncates element text to maxText runes and drops empty attributes.
func normalizeElements(elements []schemas.InteractiveElement, maxText int) []schemas.InteractiveElement {
	for i := range elements {
		elements[i].Text = truncateText(elements[i].Text, maxText)
		for k, v := range elements[i].Attributes {
			if v == "" {
				delete(elements[i].Attributes, k)
			}
		}
		if v, ok := elements[i].Attributes["value"]; ok {
			elements[i].Attributes["value"] = truncateText(v, maxText)
		}
	}
	return elements
}

// truncateText shortens s to at most n runes, marking the cut with "...".
// n <= 0 disables truncation.
func truncateText(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(out)
}

func jsStringArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = jsString(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
