package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// HandlerFunc executes one capability. Expected failures (element gone,
// navigation error) are reported inside the ActionResult so the oracle can
// react to them; the error return is reserved for parameter validation.
type HandlerFunc func(ctx context.Context, params ActionParams) (schemas.ActionResult, error)

// Capability is one registered action the oracle may request.
type Capability struct {
	Name        string
	Description string
	// Params is the declared parameter schema, checked before dispatch.
	Params []ParamSpec
	// Terminal marks capabilities allowed to end the run. Results carrying a
	// terminal status from a non-terminal capability are rejected.
	Terminal bool
	Handler  HandlerFunc
}

// Controller is the capability registry and dispatcher. Registration happens
// at startup; dispatch is safe for concurrent use.
type Controller struct {
	logger *zap.Logger

	mu           sync.RWMutex
	capabilities map[string]Capability
	order        []string
}

// New creates an empty registry.
func New(logger *zap.Logger) *Controller {
	return &Controller{
		logger:       logger.Named("controller"),
		capabilities: make(map[string]Capability),
	}
}

// Register adds a capability to the registry. Names must be unique.
func (c *Controller) Register(cap Capability) error {
	if cap.Name == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if cap.Handler == nil {
		return fmt.Errorf("capability %q has no handler", cap.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.capabilities[cap.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCapability, cap.Name)
	}
	c.capabilities[cap.Name] = cap
	c.order = append(c.order, cap.Name)
	return nil
}

// Names returns the registered capability names in registration order.
func (c *Controller) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Descriptions renders the capability list for the oracle's system prompt.
func (c *Controller) Descriptions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var b strings.Builder
	for _, name := range c.order {
		cap := c.capabilities[name]
		if cap.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", name, cap.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	return b.String()
}

// Dispatch routes a decision to its capability handler. Unknown names and
// invalid parameters are returned as typed errors; every other failure mode,
// including a panicking handler, is folded into the ActionResult.
func (c *Controller) Dispatch(ctx context.Context, req schemas.ActionRequest) (result schemas.ActionResult, err error) {
	c.mu.RLock()
	cap, ok := c.capabilities[req.Name]
	c.mu.RUnlock()
	if !ok {
		return schemas.ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownCapability, req.Name)
	}

	// Schema check happens before the handler, so a rejected request never
	// touches the target.
	if err := validateParams(cap.Params, req.Params); err != nil {
		var ipe *InvalidParamsError
		if errors.As(err, &ipe) {
			ipe.Capability = req.Name
		}
		return schemas.ActionResult{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Capability handler panicked",
				zap.String("capability", req.Name),
				zap.Any("panic", r),
			)
			result = schemas.ActionResult{Error: fmt.Sprintf("capability %q panicked: %v", req.Name, r)}
			err = nil
		}
	}()

	result, err = cap.Handler(ctx, ActionParams(req.Params))
	if err != nil {
		var ipe *InvalidParamsError
		if errors.As(err, &ipe) {
			ipe.Capability = req.Name
			return schemas.ActionResult{}, ipe
		}
		// Handlers report operational failures via the result; an unexpected
		// error here is folded in the same way so the run can continue.
		c.logger.Warn("Capability returned unexpected error",
			zap.String("capability", req.Name),
			zap.Error(err),
		)
		return schemas.ActionResult{Error: err.Error()}, nil
	}

	if result.Status.Terminal() && !cap.Terminal {
		c.logger.Error("Non-terminal capability returned terminal status",
			zap.String("capability", req.Name),
			zap.String("status", string(result.Status)),
		)
		return schemas.ActionResult{
			Error: fmt.Sprintf("capability %q is not allowed to end the run", req.Name),
		}, nil
	}

	return result, nil
}
