// internal/browser/keys.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"tab":        kb.Tab,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"space":      " ",
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"home":       kb.Home,
	"end":        kb.End,
}

var modifierNames = map[string]schemas.KeyModifier{
	"control": schemas.ModCtrl,
	"ctrl":    schemas.ModCtrl,
	"alt":     schemas.ModAlt,
	"option":  schemas.ModAlt,
	"shift":   schemas.ModShift,
	"meta":    schemas.ModMeta,
	"cmd":     schemas.ModMeta,
	"command": schemas.ModMeta,
}

// parseKeys turns a send_keys argument such as "Control+a Delete" into chords.
// Chords are separated by whitespace and keys within a chord by "+". The last
// key of a chord is either a named key, a single character, or literal text.
func parseKeys(keys string) ([]schemas.KeyEventData, error) {
	fields := strings.Fields(keys)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no keys given")
	}

	chords := make([]schemas.KeyEventData, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, "+")
		// A trailing "+" means the plus key itself, e.g. "Control++".
		switch {
		case field == "+":
			parts = []string{"+"}
		case strings.HasSuffix(field, "++"):
			parts = append(parts[:len(parts)-2], "+")
		}

		var chord schemas.KeyEventData
		for i, part := range parts {
			if i < len(parts)-1 {
				mod, ok := modifierNames[strings.ToLower(part)]
				if !ok {
					return nil, fmt.Errorf("unknown modifier %q in %q", part, field)
				}
				chord.Modifiers |= mod
				continue
			}
			if part == "" {
				return nil, fmt.Errorf("missing key in %q", field)
			}
			if named, ok := namedKeys[strings.ToLower(part)]; ok {
				chord.Key = named
			} else if _, isMod := modifierNames[strings.ToLower(part)]; isMod {
				return nil, fmt.Errorf("modifier %q needs a key", part)
			} else {
				chord.Key = part
			}
		}
		chords = append(chords, chord)
	}
	return chords, nil
}

// keyActions converts chords into chromedp key events.
func keyActions(chords []schemas.KeyEventData) chromedp.Tasks {
	tasks := make(chromedp.Tasks, 0, len(chords))
	for _, c := range chords {
		if c.Modifiers == schemas.ModNone {
			tasks = append(tasks, chromedp.KeyEvent(c.Key))
			continue
		}
		tasks = append(tasks, chromedp.KeyEvent(c.Key, chromedp.KeyModifiers(toInputModifiers(c.Modifiers)...)))
	}
	return tasks
}

func toInputModifiers(m schemas.KeyModifier) []input.Modifier {
	var mods []input.Modifier
	for _, pair := range []struct {
		have schemas.KeyModifier
		cdp  input.Modifier
	}{
		{schemas.ModAlt, input.ModifierAlt},
		{schemas.ModCtrl, input.ModifierCtrl},
		{schemas.ModMeta, input.ModifierMeta},
		{schemas.ModShift, input.ModifierShift},
	} {
		if m&pair.have != 0 {
			mods = append(mods, pair.cdp)
		}
	}
	return mods
}
