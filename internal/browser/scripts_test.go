// internal/browser/scripts_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webpilot/internal/dom"
)

func TestFingerprintChangedSince(t *testing.T) {
	before := fingerprint{URL: "https://example.com/", Interactive: 5}

	assert.False(t, before.changedSince(before))
	assert.False(t, fingerprint{URL: before.URL, Interactive: 3}.changedSince(before), "elements disappearing is not new content")
	assert.True(t, fingerprint{URL: before.URL, Interactive: 6}.changedSince(before))
	assert.True(t, fingerprint{URL: "https://example.com/next", Interactive: 5}.changedSince(before))
}

func TestElementSelector(t *testing.T) {
	assert.Equal(t, `[`+dom.IndexAttribute+`="12"]`, elementSelector(12))
	assert.Contains(t, existsJS(elementSelector(3)), `document.querySelector("[`+dom.IndexAttribute+`=\"3\"]")`)
}

func TestScrollJS(t *testing.T) {
	assert.Equal(t, "window.scrollBy(0, 300)", scrollJS(300, true))
	assert.Equal(t, "window.scrollBy(0, -300)", scrollJS(300, false))
	assert.Equal(t, "window.scrollBy(0, window.innerHeight)", scrollJS(0, true))
	assert.Equal(t, "window.scrollBy(0, -window.innerHeight)", scrollJS(-1, false))
}

func TestIndexerScriptUsesIndexAttribute(t *testing.T) {
	assert.Contains(t, indexerJS, `"`+dom.IndexAttribute+`"`)
	assert.Contains(t, indexerJS, "outerHTML")
}
