package controller

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/browser"
)

// MockBrowser is a testify mock of browser.Browser.
type MockBrowser struct {
	mock.Mock
}

var _ browser.Browser = (*MockBrowser)(nil)

func (m *MockBrowser) GetState() *schemas.BrowserState {
	args := m.Called()
	if s, ok := args.Get(0).(*schemas.BrowserState); ok {
		return s
	}
	return nil
}

func (m *MockBrowser) RefreshState(ctx context.Context) (*schemas.BrowserState, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).(*schemas.BrowserState); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowser) GoBack(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowser) MoveMouse(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockBrowser) Click(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockBrowser) ScrollWheel(ctx context.Context, x, y, deltaX, deltaY float64) error {
	return m.Called(ctx, x, y, deltaX, deltaY).Error(0)
}

func (m *MockBrowser) SendKeys(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockBrowser) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockBrowser) SelectAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowser) EvaluateScript(ctx context.Context, script string, res interface{}) error {
	return m.Called(ctx, script, res).Error(0)
}

func (m *MockBrowser) Tabs(ctx context.Context) ([]schemas.TabInfo, error) {
	args := m.Called(ctx)
	if t, ok := args.Get(0).([]schemas.TabInfo); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) TabCount() int {
	return m.Called().Int(0)
}

func (m *MockBrowser) SwitchTab(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}

func (m *MockBrowser) CreateTab(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowser) Viewport() schemas.Viewport {
	args := m.Called()
	return args.Get(0).(schemas.Viewport)
}

func (m *MockBrowser) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
