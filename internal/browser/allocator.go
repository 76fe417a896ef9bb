// internal/browser/allocator.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// Default window size used when the configuration has no viewport.
const (
	defaultWindowWidth  = 1280
	defaultWindowHeight = 800
)

// DefaultAllocatorOptions builds the exec allocator options for a browser session.
// Options are listed explicitly rather than starting from chromedp.DefaultExecAllocatorOptions
// so that headless mode is only set when configured.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("enable-automation", true),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true),
		)
	}

	width, height := viewportSize(cfg)
	opts = append(opts, chromedp.WindowSize(width, height))

	// Extra args accept both boolean flags and key=value pairs.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		key, value, found := strings.Cut(arg, "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

func viewportSize(cfg config.BrowserConfig) (int, int) {
	width, height := cfg.Viewport["width"], cfg.Viewport["height"]
	if width <= 0 {
		width = defaultWindowWidth
	}
	if height <= 0 {
		height = defaultWindowHeight
	}
	return width, height
}

// windowSizeArg is the flag value chromedp.WindowSize produces, used in logs.
func windowSizeArg(cfg config.BrowserConfig) string {
	w, h := viewportSize(cfg)
	return fmt.Sprintf("%d,%d", w, h)
}
