package browser

import (
	"context"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// Browser is the surface capability handlers interact with. A single
// implementation backed by the Chrome DevTools Protocol lives in this
// package; tests substitute a mock.
type Browser interface {
	// GetState returns the last refreshed page state without touching the
	// target. RefreshState captures a fresh screenshot, re-runs element
	// detection and rebuilds the state.
	GetState() *schemas.BrowserState
	RefreshState(ctx context.Context) (*schemas.BrowserState, error)

	// Navigate loads a URL in the active tab. GoBack walks the history.
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error

	// Raw input primitives. Coordinates are viewport CSS pixels.
	MoveMouse(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64) error
	ScrollWheel(ctx context.Context, x, y, deltaX, deltaY float64) error
	SendKeys(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	SelectAll(ctx context.Context) error

	// EvaluateScript runs JavaScript in the active tab and unmarshals the
	// result into res when res is non-nil.
	EvaluateScript(ctx context.Context, script string, res interface{}) error

	// Tab management. SwitchTab accepts -1 for the most recently opened tab.
	Tabs(ctx context.Context) ([]schemas.TabInfo, error)
	TabCount() int
	SwitchTab(ctx context.Context, index int) error
	CreateTab(ctx context.Context, url string) error

	Viewport() schemas.Viewport
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	Close(ctx context.Context) error
}
