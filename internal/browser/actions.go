// internal/browser/actions.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

const (
	defaultWaitSeconds = 3
	googleSearchURL    = "https://www.google.com/search?udm=14&q="
)

// Execute performs one catalog action in the current tab. The result reports
// PageChanged when the action navigated or added new interactive elements, so
// the agent can stop running actions that were planned against the old page.
func (s *Session) Execute(ctx context.Context, call schemas.ActionCall) (schemas.ActionResult, error) {
	if err := s.alive(); err != nil {
		return schemas.ActionResult{}, err
	}
	cur, err := s.currentTab()
	if err != nil {
		return schemas.ActionResult{}, err
	}

	logger := s.logger.With(zap.String("action", call.Name))
	logger.Debug("Executing action.", zap.Any("params", call.Params))

	before, fpErr := s.fingerprint(ctx, cur)

	msg, err := s.dispatch(ctx, cur, call)
	if err != nil {
		return schemas.ActionResult{}, err
	}
	result := schemas.ActionResult{ExtractedContent: msg}

	if !watchesPage(call.Name) {
		return result, nil
	}
	if err := s.settle(ctx); err != nil {
		return result, nil
	}

	// The action may have switched tabs.
	now, err := s.currentTab()
	if err != nil {
		return schemas.ActionResult{}, err
	}
	after, err := s.fingerprint(ctx, now)
	switch {
	case now != cur, fpErr != nil, err != nil:
		// A page that cannot be inspected right now is most likely navigating.
		result.PageChanged = true
	default:
		result.PageChanged = after.changedSince(before)
	}
	if result.PageChanged {
		logger.Debug("Page changed after action.", zap.String("url", after.URL))
	}
	return result, nil
}

// watchesPage reports whether an action's side effects should be checked.
func watchesPage(name string) bool {
	switch name {
	case agent.ActionExtractPage, agent.ActionWait, agent.ActionScrollDown, agent.ActionScrollUp:
		return false
	}
	return true
}

func (s *Session) dispatch(ctx context.Context, cur *tab, call schemas.ActionCall) (string, error) {
	switch call.Name {
	case agent.ActionSearchGoogle:
		query := call.StringParam("query")
		if err := s.navigate(ctx, cur, googleSearchURL+url.QueryEscape(query)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Searched for %q in Google", query), nil

	case agent.ActionGoToURL:
		target := call.StringParam("url")
		if err := s.navigate(ctx, cur, target); err != nil {
			return "", err
		}
		return fmt.Sprintf("Navigated to %s", target), nil

	case agent.ActionGoBack:
		if err := s.run(ctx, cur, chromedp.NavigateBack()); err != nil {
			return "", fmt.Errorf("failed to go back: %w", err)
		}
		return "Navigated back", nil

	case agent.ActionClickElement:
		index, _ := call.Index()
		sel, err := s.requireElement(ctx, cur, index)
		if err != nil {
			return "", err
		}
		if err := s.run(ctx, cur,
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery),
		); err != nil {
			return "", fmt.Errorf("failed to click element %d: %w", index, err)
		}
		return fmt.Sprintf("Clicked element with index %d", index), nil

	case agent.ActionInputText:
		index, _ := call.Index()
		text := call.StringParam("text")
		sel, err := s.requireElement(ctx, cur, index)
		if err != nil {
			return "", err
		}
		if err := s.run(ctx, cur,
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Focus(sel, chromedp.ByQuery),
			chromedp.SetValue(sel, "", chromedp.ByQuery),
			chromedp.SendKeys(sel, text, chromedp.ByQuery),
		); err != nil {
			return "", fmt.Errorf("failed to input text into element %d: %w", index, err)
		}
		return fmt.Sprintf("Input %q into element with index %d", text, index), nil

	case agent.ActionSendKeys:
		keys := call.StringParam("keys")
		chords, err := parseKeys(keys)
		if err != nil {
			return "", err
		}
		if err := s.run(ctx, cur, keyActions(chords)); err != nil {
			return "", fmt.Errorf("failed to send keys: %w", err)
		}
		return fmt.Sprintf("Sent keys: %s", keys), nil

	case agent.ActionScrollDown, agent.ActionScrollUp:
		down := call.Name == agent.ActionScrollDown
		amount, _ := call.IntParam("amount")
		if err := s.run(ctx, cur, chromedp.Evaluate(scrollJS(amount, down), nil)); err != nil {
			return "", fmt.Errorf("failed to scroll: %w", err)
		}
		dir := "up"
		if down {
			dir = "down"
		}
		if amount > 0 {
			return fmt.Sprintf("Scrolled %s the page by %d pixels", dir, amount), nil
		}
		return fmt.Sprintf("Scrolled %s the page by one page", dir), nil

	case agent.ActionOpenNewTab:
		target := call.StringParam("url")
		if err := s.OpenTab(ctx, target); err != nil {
			return "", err
		}
		if target == "" {
			return "Opened new tab", nil
		}
		return fmt.Sprintf("Opened new tab with %s", target), nil

	case agent.ActionSwitchTab:
		pageID, _ := call.IntParam("page_id")
		t, ok := s.tabAt(pageID)
		if !ok {
			return "", fmt.Errorf("no tab with page_id %d", pageID)
		}
		if err := s.SwitchTab(ctx, string(t.id)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Switched to tab %d", pageID), nil

	case agent.ActionExtractPage:
		var page string
		if err := s.run(ctx, cur, chromedp.OuterHTML("html", &page, chromedp.ByQuery)); err != nil {
			return "", fmt.Errorf("failed to read page content: %w", err)
		}
		text, err := pageText(page)
		if err != nil {
			return "", err
		}
		return "Extracted page content:\n" + text, nil

	case agent.ActionWait:
		seconds, ok := call.IntParam("seconds")
		if !ok || seconds <= 0 {
			seconds = defaultWaitSeconds
		}
		waited := wait(ctx, time.Duration(seconds)*time.Second)
		if ctx.Err() != nil && waited == 0 {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Waited for %d seconds", int(waited.Round(time.Second)/time.Second)), nil

	default:
		return "", &schemas.UnknownActionError{Name: call.Name}
	}
}

// run executes actions in t under the caller's context.
func (s *Session) run(ctx context.Context, t *tab, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.wrap(ctx, t, err)
	}
	return nil
}

// requireElement checks that the index from the last capture still exists. The
// chromedp query actions would otherwise block until the deadline.
func (s *Session) requireElement(ctx context.Context, t *tab, index int) (string, error) {
	sel := elementSelector(index)
	var exists bool
	if err := s.run(ctx, t, chromedp.Evaluate(existsJS(sel), &exists)); err != nil {
		return "", fmt.Errorf("failed to look up element %d: %w", index, err)
	}
	if !exists {
		return "", fmt.Errorf("element with index %d no longer exists on the page", index)
	}
	return sel, nil
}

func (s *Session) fingerprint(ctx context.Context, t *tab) (fingerprint, error) {
	var fp fingerprint
	err := s.run(ctx, t, chromedp.Evaluate(fingerprintJS, &fp))
	return fp, err
}

// wait sleeps for d, or until shortly before ctx's deadline. It returns how
// long it actually waited.
func wait(ctx context.Context, d time.Duration) time.Duration {
	start := time.Now()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) - 100*time.Millisecond; remaining < d {
			d = remaining
		}
	}
	if d <= 0 {
		return 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return time.Since(start)
}

// pageText returns the visible text of a serialized page with whitespace
// collapsed, one block per line.
func pageText(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse page content: %w", err)
	}
	doc.Find("script, style, noscript, template, svg, head").Remove()

	var lines []string
	doc.Find("body").Find("h1, h2, h3, h4, h5, h6, p, li, td, th, dt, dd, pre, blockquote, a, button, label").Each(func(_ int, sel *goquery.Selection) {
		// Nested blocks are covered by their outermost match.
		if sel.ParentsFiltered("p, li, td, th, dd, pre, blockquote, a, button, label").Length() > 0 {
			return
		}
		if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		body := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
		return body, nil
	}
	return strings.Join(lines, "\n"), nil
}
