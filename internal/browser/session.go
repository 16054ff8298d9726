package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/config"
)

// tab pairs a chromedp context with the target it is attached to.
type tab struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID target.ID
}

// Session drives a single Chrome instance over the DevTools Protocol. One
// session owns the browser process, its tabs and the last refreshed page
// state.
type Session struct {
	id       string
	cfg      config.BrowserConfig
	logger   *zap.Logger
	detector Detector

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu     sync.RWMutex
	tabs   []*tab
	active int
	state  *schemas.BrowserState

	closeOnce sync.Once
}

var _ Browser = (*Session)(nil)

// NewSession launches the browser process and attaches to its initial tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, detector Detector, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", sessionID))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(int(cfg.ViewportWidth), int(cfg.ViewportHeight)),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Launch the browser process by running an empty task list.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := &Session{
		id:          sessionID,
		cfg:         cfg,
		logger:      log,
		detector:    detector,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		state: &schemas.BrowserState{
			Viewport:            schemas.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
			InteractiveElements: map[int]schemas.InteractiveElement{},
		},
	}
	s.tabs = append(s.tabs, &tab{
		ctx:      tabCtx,
		cancel:   tabCancel,
		targetID: chromedp.FromContext(tabCtx).Target.TargetID,
	})

	log.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// activeTab returns the currently selected tab.
func (s *Session) activeTab() *tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tabs[s.active]
}

// run executes chromedp actions on the active tab, honoring the caller's
// context. chromedp actions must run on a context derived from the tab's, so
// cancellation from the operational context is propagated separately.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.activeTab().ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// -- Navigation --

// Navigate loads the URL in the active tab and waits for the configured
// settle period.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	s.logger.Info("Navigating", zap.String("url", url))
	return s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.cfg.PostNavigationWait),
	)
}

// GoBack walks one entry back in the tab's history.
func (s *Session) GoBack(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	return s.run(navCtx,
		chromedp.NavigateBack(),
		chromedp.Sleep(time.Second),
	)
}

// -- Input Primitives --

func (s *Session) MoveMouse(ctx context.Context, x, y float64) error {
	return s.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))
}

func (s *Session) Click(ctx context.Context, x, y float64) error {
	press := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	release := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	return s.run(ctx, press, release)
}

func (s *Session) ScrollWheel(ctx context.Context, x, y, deltaX, deltaY float64) error {
	wheel := input.DispatchMouseEvent(input.MouseWheel, x, y).
		WithDeltaX(deltaX).
		WithDeltaY(deltaY)
	return s.run(ctx, wheel)
}

// SendKeys types the text into the focused element.
func (s *Session) SendKeys(ctx context.Context, text string) error {
	return s.run(ctx, chromedp.KeyEvent(text))
}

// PressKey dispatches a single named key, e.g. "Enter" or "Backspace".
func (s *Session) PressKey(ctx context.Context, key string) error {
	return s.run(ctx, chromedp.KeyEvent(keyForName(key)))
}

// SelectAll issues the platform select-all shortcut to the focused element.
func (s *Session) SelectAll(ctx context.Context) error {
	modifier := input.ModifierCtrl
	if runtime.GOOS == "darwin" {
		modifier = input.ModifierMeta
	}
	return s.run(ctx, chromedp.KeyEvent("a", chromedp.KeyModifiers(modifier)))
}

func keyForName(key string) string {
	switch key {
	case "Enter":
		return kb.Enter
	case "Backspace":
		return kb.Backspace
	case "Tab":
		return kb.Tab
	case "Escape":
		return kb.Escape
	default:
		return key
	}
}

// -- Script Evaluation --

// EvaluateScript runs JavaScript in the active tab. Promises are awaited and
// the value is returned by value; when res is non-nil the result is
// unmarshaled into it.
func (s *Session) EvaluateScript(ctx context.Context, script string, res interface{}) error {
	var raw json.RawMessage
	err := s.run(ctx,
		chromedp.Evaluate(script, &raw, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	if res == nil {
		return nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("failed to unmarshal script result: %w", err)
	}
	return nil
}

// -- Tab Management --

// TabCount returns the number of open tabs.
func (s *Session) TabCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tabs)
}

// Tabs reports the URL and title of every open tab.
func (s *Session) Tabs(ctx context.Context) ([]schemas.TabInfo, error) {
	s.mu.RLock()
	tabs := make([]*tab, len(s.tabs))
	copy(tabs, s.tabs)
	s.mu.RUnlock()

	infos := make([]schemas.TabInfo, 0, len(tabs))
	for i, t := range tabs {
		var info *target.Info
		err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			info, err = target.GetTargetInfo().Do(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to query tab %d: %w", i, err)
		}
		infos = append(infos, schemas.TabInfo{ID: i, URL: info.URL, Title: info.Title})
	}
	return infos, nil
}

// SwitchTab activates the tab at index; -1 selects the most recently opened
// tab.
func (s *Session) SwitchTab(ctx context.Context, index int) error {
	s.mu.Lock()
	if index == -1 {
		index = len(s.tabs) - 1
	}
	if index < 0 || index >= len(s.tabs) {
		count := len(s.tabs)
		s.mu.Unlock()
		return fmt.Errorf("tab index %d out of range (have %d tabs)", index, count)
	}
	t := s.tabs[index]
	s.active = index
	s.mu.Unlock()

	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to activate tab %d: %w", index, err)
	}
	s.logger.Debug("Switched tab", zap.Int("index", index))
	return nil
}

// CreateTab opens a new tab, navigates it to the URL and makes it active.
func (s *Session) CreateTab(ctx context.Context, url string) error {
	parent := s.activeTab()

	var id target.ID
	err := chromedp.Run(parent.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget(url).Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to create tab: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(parent.ctx, chromedp.WithTargetID(id))
	// Attach to the new target.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return fmt.Errorf("failed to attach to new tab: %w", err)
	}

	s.mu.Lock()
	s.tabs = append(s.tabs, &tab{ctx: tabCtx, cancel: tabCancel, targetID: id})
	s.active = len(s.tabs) - 1
	s.mu.Unlock()

	s.logger.Info("Opened new tab", zap.String("url", url))
	return s.run(ctx, chromedp.Sleep(s.cfg.PostNavigationWait))
}

// -- State --

// Viewport returns the configured viewport size.
func (s *Session) Viewport() schemas.Viewport {
	return schemas.Viewport{Width: s.cfg.ViewportWidth, Height: s.cfg.ViewportHeight}
}

// CaptureScreenshot takes a PNG of the active tab's viewport.
func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// GetState returns the last refreshed snapshot.
func (s *Session) GetState() *schemas.BrowserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RefreshState captures a fresh screenshot, re-runs element detection and
// rebuilds the page snapshot. Element indices are only valid within the
// snapshot that produced them.
func (s *Session) RefreshState(ctx context.Context) (*schemas.BrowserState, error) {
	screenshot, err := s.CaptureScreenshot(ctx)
	if err != nil {
		return nil, err
	}

	detected, err := s.detector.DetectFromImage(ctx, screenshot, s.cfg.DetectSheets)
	if err != nil {
		return nil, fmt.Errorf("element detection failed: %w", err)
	}

	var url, title string
	if err := s.run(ctx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		return nil, fmt.Errorf("failed to read page location: %w", err)
	}

	tabs, err := s.Tabs(ctx)
	if err != nil {
		return nil, err
	}

	elements := make(map[int]schemas.InteractiveElement, len(detected))
	for _, el := range detected {
		elements[el.Index] = el
	}

	state := &schemas.BrowserState{
		URL:                 url,
		Title:               title,
		Viewport:            s.Viewport(),
		InteractiveElements: elements,
		Tabs:                tabs,
		Screenshot:          screenshot,
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.logger.Debug("Refreshed browser state",
		zap.String("url", url),
		zap.Int("elements", len(elements)),
		zap.Int("tabs", len(tabs)),
	)
	return state, nil
}

// Close shuts down every tab and the browser process.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		s.mu.Lock()
		for _, t := range s.tabs {
			t.cancel()
		}
		s.tabs = nil
		s.mu.Unlock()
		s.allocCancel()
	})
	return nil
}
