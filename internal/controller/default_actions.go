package controller

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
	"github.com/xkilldash9x/navigator-cli/internal/browser"
	"github.com/xkilldash9x/navigator-cli/internal/config"
)

// Capability names for the default action set.
const (
	ActionDone                  = "done"
	ActionGiveHumanControl      = "give_human_control"
	ActionSearchGoogle          = "search_google"
	ActionGoToURL               = "go_to_url"
	ActionGoBack                = "go_back_to_previous_page"
	ActionClickElement          = "click_element"
	ActionWaitForPageToLoad     = "wait_for_page_to_load"
	ActionEnterText             = "enter_text_into_element"
	ActionSwitchTab             = "switch_tab"
	ActionOpenTab               = "open_tab"
	ActionScrollPageDown        = "scroll_page_down"
	ActionScrollPageUp          = "scroll_page_up"
	ActionScrollDownOverElement = "scroll_down_over_element"
	ActionScrollUpOverElement   = "scroll_up_over_element"
	ActionPressEnter            = "press_enter"
	ActionClearText             = "clear_text_in_element"
	ActionGetSelectOptions      = "get_select_options"
	ActionSelectDropdownOption  = "select_dropdown_option"
)

// inputSettleDelay separates the synthetic input events a handler emits, so
// the page's own handlers get a chance to run between them.
const inputSettleDelay = 100 * time.Millisecond

// defaultActions bundles the dependencies the default capability set needs.
type defaultActions struct {
	browser browser.Browser
	cfg     config.BrowserConfig
	logger  *zap.Logger
}

// RegisterDefaults installs the standard browsing capability set on the
// controller.
func RegisterDefaults(c *Controller, b browser.Browser, cfg config.BrowserConfig, logger *zap.Logger) error {
	d := &defaultActions{
		browser: b,
		cfg:     cfg,
		logger:  logger.Named("actions"),
	}

	caps := []Capability{
		{
			Name:        ActionDone,
			Params:      []ParamSpec{{Name: "text", Kind: ParamString, Required: true}},
			Description: "Complete the task. Use this when the task is finished; pass the final answer in `text`.",
			Terminal:    true,
			Handler:     d.done,
		},
		{
			Name:        ActionGiveHumanControl,
			Params:      []ParamSpec{{Name: "message", Kind: ParamString, Required: true}},
			Description: "Hand the browser to a human. Use this when you need user information (names, logins, payment details) or cannot solve a CAPTCHA. Pass an explanation in `message`.",
			Terminal:    true,
			Handler:     d.giveHumanControl,
		},
		{
			Name:        ActionSearchGoogle,
			Params:      []ParamSpec{{Name: "query", Kind: ParamString, Required: true}},
			Description: "Open a Google search for `query` in the current tab.",
			Handler:     d.searchGoogle,
		},
		{
			Name:        ActionGoToURL,
			Params:      []ParamSpec{{Name: "url", Kind: ParamString, Required: true}},
			Description: "Navigate to `url` in the current tab.",
			Handler:     d.goToURL,
		},
		{
			Name:        ActionGoBack,
			Description: "Go back to the previous page.",
			Handler:     d.goBack,
		},
		{
			Name:        ActionClickElement,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}, {Name: "wait_after_click", Kind: ParamBool}},
			Description: "Click the element with `index`. Set `wait_after_click` to true when the click likely triggers loading or navigation.",
			Handler:     d.clickElement,
		},
		{
			Name:        ActionWaitForPageToLoad,
			Description: "Wait for the page to load. Use this when the screenshot is empty or shows loading placeholders.",
			Handler:     d.waitForPageToLoad,
		},
		{
			Name:        ActionEnterText,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}, {Name: "text", Kind: ParamString, Required: true}, {Name: "press_enter", Kind: ParamBool}},
			Description: "Enter `text` into the input element with `index`, replacing its current content. Set `press_enter` to true to also submit.",
			Handler:     d.enterText,
		},
		{
			Name:        ActionSwitchTab,
			Params:      []ParamSpec{{Name: "tab_index", Kind: ParamNumber, Required: true}},
			Description: "Switch to the tab with `tab_index`.",
			Handler:     d.switchTab,
		},
		{
			Name:        ActionOpenTab,
			Params:      []ParamSpec{{Name: "url", Kind: ParamString, Required: true}},
			Description: "Open `url` in a new tab and switch to it.",
			Handler:     d.openTab,
		},
		{
			Name:        ActionScrollPageDown,
			Description: "Scroll the entire page down by one viewport. Do not use this for scrollable sub-areas.",
			Handler:     d.scrollPageDown,
		},
		{
			Name:        ActionScrollPageUp,
			Description: "Scroll the entire page up by one viewport. Do not use this for scrollable sub-areas.",
			Handler:     d.scrollPageUp,
		},
		{
			Name:        ActionScrollDownOverElement,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}},
			Description: "Move the mouse over the element with `index` inside a scrollable area and scroll the wheel down.",
			Handler:     d.scrollDownOverElement,
		},
		{
			Name:        ActionScrollUpOverElement,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}},
			Description: "Move the mouse over the element with `index` inside a scrollable area and scroll the wheel up.",
			Handler:     d.scrollUpOverElement,
		},
		{
			Name:        ActionPressEnter,
			Description: "Press the Enter key. Use this to submit a form.",
			Handler:     d.pressEnter,
		},
		{
			Name:        ActionClearText,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}},
			Description: "Remove all text from the element with `index`.",
			Handler:     d.clearText,
		},
		{
			Name:        ActionGetSelectOptions,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}},
			Description: "List all options of the <select> element with `index`.",
			Handler:     d.getSelectOptions,
		},
		{
			Name:        ActionSelectDropdownOption,
			Params:      []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}, {Name: "option", Kind: ParamString, Required: true}},
			Description: "Select the option with text `option` in the <select> element with `index`. Use after get_select_options.",
			Handler:     d.selectDropdownOption,
		},
	}

	for _, cap := range caps {
		if err := c.Register(cap); err != nil {
			return err
		}
	}
	return nil
}

// element resolves an index against the current snapshot. The bool reports
// whether it exists; callers turn a miss into a StaleElementError message.
func (d *defaultActions) element(index int) (schemas.InteractiveElement, bool) {
	return d.browser.GetState().Element(index)
}

func staleResult(index int) schemas.ActionResult {
	return schemas.ActionResult{Error: (&StaleElementError{Index: index}).Error()}
}

// -- Terminal Capabilities --

func (d *defaultActions) done(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	text, err := params.String("text")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	return schemas.ActionResult{Status: schemas.StatusDone, Content: text}, nil
}

func (d *defaultActions) giveHumanControl(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	message, err := params.String("message")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	return schemas.ActionResult{Status: schemas.StatusHandedToHuman, Content: message}, nil
}

// -- Navigation Capabilities --

func (d *defaultActions) searchGoogle(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	query, err := params.String("query")
	if err != nil {
		return schemas.ActionResult{}, err
	}

	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&udm=14", url.QueryEscape(query))
	if err := d.browser.Navigate(ctx, searchURL); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}

	msg := fmt.Sprintf("Searched for '%s' in Google", query)
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

func (d *defaultActions) goToURL(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	target, err := params.String("url")
	if err != nil {
		return schemas.ActionResult{}, err
	}

	// Transient navigation faults (slow remote targets, flaky DNS) are
	// retried with exponential backoff before the failure reaches the oracle.
	policy := d.cfg.NavigationRetry
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.MinBackoff
	b.MaxInterval = policy.MaxBackoff

	attempt := 0
	operation := func() error {
		attempt++
		navErr := d.browser.Navigate(ctx, target)
		if navErr != nil && attempt < policy.MaxAttempts {
			d.logger.Warn("Retrying navigation after error",
				zap.String("url", target),
				zap.Int("attempt", attempt),
				zap.Error(navErr),
			)
			return navErr
		}
		if navErr != nil {
			return backoff.Permanent(navErr)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}

	msg := fmt.Sprintf("Navigated to %s", target)
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

func (d *defaultActions) goBack(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	if err := d.browser.GoBack(ctx); err != nil {
		d.logger.Debug("Error during go_back", zap.Error(err))
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	msg := "Navigated back to the previous page"
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

// -- Element Interaction Capabilities --

func (d *defaultActions) clickElement(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	index, err := params.Index("index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	waitAfterClick, err := params.Bool("wait_after_click")
	if err != nil {
		return schemas.ActionResult{}, err
	}

	element, ok := d.element(index)
	if !ok {
		return staleResult(index), nil
	}

	tabsBefore := d.browser.TabCount()

	if err := d.browser.MoveMouse(ctx, element.Center.X, element.Center.Y); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	if err := sleepCtx(ctx, inputSettleDelay); err != nil {
		return schemas.ActionResult{}, err
	}
	if err := d.browser.Click(ctx, element.Center.X, element.Center.Y); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}

	msg := fmt.Sprintf("Clicked element with index %d: <%s></%s>", index, element.TagName, element.TagName)
	d.logger.Info(msg)

	if d.browser.TabCount() > tabsBefore {
		msg += " - New tab opened - switching to it"
		d.logger.Info("New tab opened - switching to it")
		if err := d.browser.SwitchTab(ctx, -1); err != nil {
			return schemas.ActionResult{Error: err.Error()}, nil
		}
	}

	if waitAfterClick {
		if err := sleepCtx(ctx, time.Second); err != nil {
			return schemas.ActionResult{}, err
		}
	}
	return schemas.ActionResult{Content: msg}, nil
}

func (d *defaultActions) waitForPageToLoad(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	return schemas.ActionResult{Content: "Waited for page to load"}, nil
}

func (d *defaultActions) enterText(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	index, err := params.Index("index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	text, err := params.String("text")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	pressEnter, err := params.Bool("press_enter")
	if err != nil {
		return schemas.ActionResult{}, err
	}

	element, ok := d.element(index)
	if !ok {
		return staleResult(index), nil
	}

	if !element.Editable() {
		if element.TagName == "input" {
			return schemas.ActionResult{
				Error: fmt.Sprintf("Element %d is an input with type='%s', which doesn't accept text input.", index, element.InputType),
			}, nil
		}
		return schemas.ActionResult{
			Error: fmt.Sprintf("Element %d is not a text input element. It's a %s element.", index, element.TagName),
		}, nil
	}

	steps := []func(context.Context) error{
		func(ctx context.Context) error { return d.browser.MoveMouse(ctx, element.Center.X, element.Center.Y) },
		func(ctx context.Context) error { return sleepCtx(ctx, inputSettleDelay) },
		func(ctx context.Context) error { return d.browser.Click(ctx, element.Center.X, element.Center.Y) },
		func(ctx context.Context) error { return sleepCtx(ctx, inputSettleDelay) },
		func(ctx context.Context) error { return d.browser.SelectAll(ctx) },
		func(ctx context.Context) error { return sleepCtx(ctx, inputSettleDelay) },
		func(ctx context.Context) error { return d.browser.PressKey(ctx, "Backspace") },
		func(ctx context.Context) error { return sleepCtx(ctx, inputSettleDelay) },
		func(ctx context.Context) error { return d.browser.SendKeys(ctx, text) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return schemas.ActionResult{
				Error: fmt.Sprintf("Failed to input text into element with index %d. Error: %s", index, err),
			}, nil
		}
	}

	if pressEnter {
		if err := d.browser.PressKey(ctx, "Enter"); err != nil {
			return schemas.ActionResult{Error: err.Error()}, nil
		}
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return schemas.ActionResult{}, err
		}
	}

	msg := fmt.Sprintf("Input %q into element with index %d", text, index)
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

// -- Tab Capabilities --

func (d *defaultActions) switchTab(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	tabIndex, err := params.Int("tab_index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	if err := d.browser.SwitchTab(ctx, tabIndex); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
		return schemas.ActionResult{}, err
	}
	msg := fmt.Sprintf("Switched to tab %d", tabIndex)
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

func (d *defaultActions) openTab(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	target, err := params.String("url")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	if err := d.browser.CreateTab(ctx, target); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	msg := fmt.Sprintf("Opened new tab with %s", target)
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

// -- Scroll Capabilities --

const scrollFeedbackNote = "(it doesn't guarantee that something has scrolled, you need to check new state screenshot to confirm)"

func (d *defaultActions) scrollPage(ctx context.Context, deltaY float64, direction string) (schemas.ActionResult, error) {
	viewport := d.browser.Viewport()
	centerX := float64(viewport.Width) / 2
	centerY := float64(viewport.Height) / 2

	if err := d.browser.MoveMouse(ctx, centerX, centerY); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	if err := sleepCtx(ctx, inputSettleDelay); err != nil {
		return schemas.ActionResult{}, err
	}
	if err := d.browser.ScrollWheel(ctx, centerX, centerY, 0, deltaY); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	return schemas.ActionResult{
		Content: fmt.Sprintf("Scrolled mouse wheel %s %s", direction, scrollFeedbackNote),
	}, nil
}

func (d *defaultActions) scrollPageDown(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	return d.scrollPage(ctx, float64(d.browser.Viewport().Height)*0.8, "down")
}

func (d *defaultActions) scrollPageUp(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	return d.scrollPage(ctx, -float64(d.browser.Viewport().Height)*0.8, "up")
}

func (d *defaultActions) scrollOverElement(ctx context.Context, params ActionParams, deltaY float64, direction string) (schemas.ActionResult, error) {
	index, err := params.Index("index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	element, ok := d.element(index)
	if !ok {
		return staleResult(index), nil
	}

	if err := d.browser.MoveMouse(ctx, element.Center.X, element.Center.Y); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	if err := sleepCtx(ctx, inputSettleDelay); err != nil {
		return schemas.ActionResult{}, err
	}
	if err := d.browser.ScrollWheel(ctx, element.Center.X, element.Center.Y, 0, deltaY); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	return schemas.ActionResult{
		Content: fmt.Sprintf("Move mouse to element with index %d and scroll mouse wheel %s. %s", index, direction, scrollFeedbackNote),
	}, nil
}

func (d *defaultActions) scrollDownOverElement(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	return d.scrollOverElement(ctx, params, float64(d.browser.Viewport().Height)/3, "down")
}

func (d *defaultActions) scrollUpOverElement(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	return d.scrollOverElement(ctx, params, -float64(d.browser.Viewport().Height)/3, "up")
}

// -- Keyboard Capabilities --

func (d *defaultActions) pressEnter(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	if err := d.browser.PressKey(ctx, "Enter"); err != nil {
		return schemas.ActionResult{Error: err.Error()}, nil
	}
	return schemas.ActionResult{Content: "Pressed enter key"}, nil
}

func (d *defaultActions) clearText(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	index, err := params.Index("index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	element, ok := d.element(index)
	if !ok {
		return staleResult(index), nil
	}

	steps := []func(context.Context) error{
		func(ctx context.Context) error { return d.browser.MoveMouse(ctx, element.Center.X, element.Center.Y) },
		func(ctx context.Context) error { return d.browser.Click(ctx, element.Center.X, element.Center.Y) },
		func(ctx context.Context) error { return sleepCtx(ctx, inputSettleDelay) },
		func(ctx context.Context) error { return d.browser.SelectAll(ctx) },
		func(ctx context.Context) error { return sleepCtx(ctx, inputSettleDelay) },
		func(ctx context.Context) error { return d.browser.PressKey(ctx, "Backspace") },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return schemas.ActionResult{Error: err.Error()}, nil
		}
	}
	return schemas.ActionResult{Content: "Removed all text in the element with index"}, nil
}

// -- Dropdown Capabilities --

type selectOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
	Index int    `json:"index"`
}

type selectOptionsData struct {
	Options []selectOption `json:"options"`
	ID      string         `json:"id"`
	Name    string         `json:"name"`
}

func (d *defaultActions) getSelectOptions(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	index, err := params.Index("index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	element, ok := d.element(index)
	if !ok {
		return schemas.ActionResult{Error: fmt.Sprintf("No element found with index %d", index)}, nil
	}
	if !strings.EqualFold(element.TagName, "select") {
		return schemas.ActionResult{
			Error: fmt.Sprintf("Element %d is not a select element, it's a %s", index, element.TagName),
		}, nil
	}

	script := fmt.Sprintf(`
		(() => {
			const select = document.querySelector('[data-navigator-id=%q]');
			if (!select) return null;
			return {
				options: Array.from(select.options).map(opt => ({
					text: opt.text,
					value: opt.value,
					index: opt.index
				})),
				id: select.id,
				name: select.name
			};
		})()
	`, element.ID)

	var data *selectOptionsData
	if err := d.browser.EvaluateScript(ctx, script, &data); err != nil {
		d.logger.Error("Failed to get dropdown options", zap.Error(err))
		return schemas.ActionResult{Error: fmt.Sprintf("Error getting dropdown options: %s", err)}, nil
	}
	if data == nil {
		return schemas.ActionResult{Error: fmt.Sprintf("Select element not found with ID: %s", element.ID)}, nil
	}

	lines := make([]string, 0, len(data.Options)+1)
	for _, opt := range data.Options {
		lines = append(lines, fmt.Sprintf("%d: option=%q", opt.Index, opt.Text))
	}
	lines = append(lines, "If you decide to use this select element, use the exact option name in select_dropdown_option")

	d.logger.Info("Found dropdown", zap.String("id", data.ID), zap.String("name", data.Name))
	return schemas.ActionResult{Content: strings.Join(lines, "\n")}, nil
}

type selectionResult struct {
	Success          bool     `json:"success"`
	Value            string   `json:"value"`
	Index            int      `json:"index"`
	Error            string   `json:"error"`
	AvailableOptions []string `json:"availableOptions"`
}

func (d *defaultActions) selectDropdownOption(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	index, err := params.Index("index")
	if err != nil {
		return schemas.ActionResult{}, err
	}
	option, err := params.String("option")
	if err != nil {
		return schemas.ActionResult{}, err
	}

	element, ok := d.element(index)
	if !ok {
		return schemas.ActionResult{Error: fmt.Sprintf("No element found with index %d", index)}, nil
	}
	if !strings.EqualFold(element.TagName, "select") {
		return schemas.ActionResult{
			Error: fmt.Sprintf("Element %d is not a select element, it's a %s", index, element.TagName),
		}, nil
	}

	script := fmt.Sprintf(`
		(() => {
			const select = document.querySelector('[data-navigator-id=%q]');
			if (!select) {
				return { success: false, error: "Select element not found" };
			}
			const optionText = %q;
			for (let i = 0; i < select.options.length; i++) {
				const opt = select.options[i];
				if (opt.text === optionText) {
					opt.selected = true;
					select.dispatchEvent(new Event('change', { bubbles: true }));
					return { success: true, value: opt.value, index: i };
				}
			}
			return {
				success: false,
				error: "Option not found: " + optionText,
				availableOptions: Array.from(select.options).map(o => o.text)
			};
		})()
	`, element.ID, option)

	var result selectionResult
	if err := d.browser.EvaluateScript(ctx, script, &result); err != nil {
		msg := fmt.Sprintf("Selection failed: %s", err)
		d.logger.Error(msg)
		return schemas.ActionResult{Error: msg}, nil
	}

	if !result.Success {
		errMsg := result.Error
		if len(result.AvailableOptions) > 0 {
			errMsg += ". Available options: " + strings.Join(result.AvailableOptions, ", ")
		}
		d.logger.Error("Selection failed", zap.String("error", errMsg))
		return schemas.ActionResult{Error: errMsg}, nil
	}

	msg := fmt.Sprintf("Selected option '%s' with value '%s' at index %d", option, result.Value, result.Index)
	d.logger.Info(msg)
	return schemas.ActionResult{Content: msg}, nil
}

// sleepCtx pauses for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
