// internal/browser/options.go
package browser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/webpilot/internal/config"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 1100
)

// viewport returns the configured window size, falling back to the defaults.
func viewport(cfg config.BrowserConfig) (int, int) {
	w, h := cfg.Viewport["width"], cfg.Viewport["height"]
	if w <= 0 {
		w = defaultViewportWidth
	}
	if h <= 0 {
		h = defaultViewportHeight
	}
	return w, h
}

// chromeFlags returns the command line flags applied on top of chromedp's
// defaults. Values are bool or string, as chromedp.Flag expects.
func chromeFlags(cfg config.BrowserConfig) map[string]interface{} {
	w, h := viewport(cfg)
	flags := map[string]interface{}{
		"disable-blink-features": "AutomationControlled",
		"disable-popup-blocking": true,
		"disable-dev-shm-usage":  true,
		"window-size":            fmt.Sprintf("%d,%d", w, h),
	}
	if !cfg.Headless {
		flags["headless"] = false
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the Chrome launch options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := chromeFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
