// internal/browser/allocator_test.go
package browser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// hasOption checks for an option by inspecting its printed form. Options are closures,
// so this is the only way to look at them without launching a browser.
func hasOption(opts []chromedp.ExecAllocatorOption, substring string) bool {
	for _, opt := range opts {
		if strings.Contains(fmt.Sprintf("%#v", opt), substring) {
			return true
		}
	}
	return false
}

func TestDefaultAllocatorOptions(t *testing.T) {
	t.Run("BaseOptions", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{})
		// Base flags, window size, no headless, no user data dir.
		assert.Len(t, opts, 9)
	})

	t.Run("Headless", func(t *testing.T) {
		base := len(DefaultAllocatorOptions(config.BrowserConfig{}))
		opts := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		assert.Len(t, opts, base+1)
	})

	t.Run("UserDataDirAndExecPath", func(t *testing.T) {
		base := len(DefaultAllocatorOptions(config.BrowserConfig{}))
		opts := DefaultAllocatorOptions(config.BrowserConfig{UserDataDir: "/tmp/profile", ExecPath: "/usr/bin/chromium"})
		assert.Len(t, opts, base+2)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		base := len(DefaultAllocatorOptions(config.BrowserConfig{}))
		opts := DefaultAllocatorOptions(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Len(t, opts, base+2)
	})

	t.Run("CustomArgs", func(t *testing.T) {
		base := len(DefaultAllocatorOptions(config.BrowserConfig{}))
		opts := DefaultAllocatorOptions(config.BrowserConfig{
			Args: []string{"--lang=en-US", "--mute-audio", "", "--"},
		})
		assert.Len(t, opts, base+2, "empty args are skipped")
	})

	t.Run("OptionsAreUsable", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{Headless: true, Args: []string{"--custom-arg"}})
		for _, opt := range opts {
			assert.NotNil(t, opt)
		}
		assert.False(t, hasOption(opts, "headlessfalse"))
	})
}

func TestViewportSize(t *testing.T) {
	tests := []struct {
		name          string
		viewport      map[string]int
		width, height int
	}{
		{"nil viewport", nil, defaultWindowWidth, defaultWindowHeight},
		{"configured", map[string]int{"width": 1920, "height": 1080}, 1920, 1080},
		{"partial", map[string]int{"width": 1024}, 1024, defaultWindowHeight},
		{"invalid", map[string]int{"width": -1, "height": 0}, defaultWindowWidth, defaultWindowHeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := viewportSize(config.BrowserConfig{Viewport: tt.viewport})
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
		})
	}

	assert.Equal(t, "1920,1080", windowSizeArg(config.BrowserConfig{Viewport: map[string]int{"width": 1920, "height": 1080}}))
}
