// internal/browser/scripts.go
package browser

import (
	"fmt"

	"github.com/xkilldash9x/webpilot/internal/dom"
)

// interactiveSelector matches elements a user can act on.
const interactiveSelector = `a[href], button, input:not([type="hidden"]), select, textarea, summary, details, label[for],` +
	` [role="button"], [role="link"], [role="checkbox"], [role="radio"], [role="tab"], [role="menuitem"], [role="option"],` +
	` [role="switch"], [role="combobox"], [role="textbox"], [role="searchbox"], [onclick], [contenteditable="true"], [tabindex]:not([tabindex="-1"])`

// indexerJS stamps a fresh index onto every visible, enabled interactive element
// and returns the serialized document. Indices from earlier observations are
// cleared first so a stale index can never resolve.
var indexerJS = fmt.Sprintf(`(() => {
	const attr = %q;
	document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));
	const visible = el => {
		if (el.disabled) return false;
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none' || Number(style.opacity) === 0) return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	let next = 0;
	for (const el of document.querySelectorAll(%q)) {
		if (el.closest('[' + attr + ']')) continue;
		if (!visible(el)) continue;
		el.setAttribute(attr, String(next++));
	}
	document.querySelectorAll('input, textarea').forEach(el => {
		if (el.getAttribute('value') !== el.value) el.setAttribute('value', el.value);
	});
	return document.documentElement.outerHTML;
})()`, dom.IndexAttribute, interactiveSelector)

// fingerprintJS summarizes the page so an action's side effects can be detected.
var fingerprintJS = fmt.Sprintf(`(() => ({
	url: window.location.href,
	interactive: document.querySelectorAll(%q).length,
}))()`, interactiveSelector)

// fingerprint is the decoded result of fingerprintJS.
type fingerprint struct {
	URL         string `json:"url"`
	Interactive int    `json:"interactive"`
}

// changedSince reports whether the page navigated or grew new interactive
// elements between before and f.
func (f fingerprint) changedSince(before fingerprint) bool {
	return f.URL != before.URL || f.Interactive > before.Interactive
}

// elementSelector addresses the element stamped with index by the last capture.
func elementSelector(index int) string {
	return fmt.Sprintf(`[%s="%d"]`, dom.IndexAttribute, index)
}

func existsJS(selector string) string {
	return fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
}

func scrollJS(pixels int, down bool) string {
	switch {
	case pixels > 0 && down:
		return fmt.Sprintf(`window.scrollBy(0, %d)`, pixels)
	case pixels > 0:
		return fmt.Sprintf(`window.scrollBy(0, -%d)`, pixels)
	case down:
		return `window.scrollBy(0, window.innerHeight)`
	default:
		return `window.scrollBy(0, -window.innerHeight)`
	}
}
