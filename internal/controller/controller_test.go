package controller

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

func okHandler(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
	return schemas.ActionResult{Content: "ok"}, nil
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{Name: "noop", Handler: okHandler}))

	err := c.Register(Capability{Name: "noop", Handler: okHandler})
	require.ErrorIs(t, err, ErrDuplicateCapability)
}

func TestRegister_RejectsInvalidCapabilities(t *testing.T) {
	c := New(zap.NewNop())
	require.Error(t, c.Register(Capability{Name: "", Handler: okHandler}))
	require.Error(t, c.Register(Capability{Name: "no_handler"}))
}

func TestDispatch_UnknownCapability(t *testing.T) {
	c := New(zap.NewNop())
	_, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "nonexistent"})
	require.ErrorIs(t, err, ErrUnknownCapability)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestDispatch_InvalidParamsCarriesCapabilityName(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{
		Name: "needs_text",
		Handler: func(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
			if _, err := params.String("text"); err != nil {
				return schemas.ActionResult{}, err
			}
			return schemas.ActionResult{}, nil
		},
	}))

	_, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "needs_text"})
	var ipe *InvalidParamsError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "needs_text", ipe.Capability)
	assert.Equal(t, "text", ipe.Field)
}

func TestDispatch_SchemaRejectsBeforeHandler(t *testing.T) {
	c := New(zap.NewNop())
	invoked := false
	require.NoError(t, c.Register(Capability{
		Name:   "typed",
		Params: []ParamSpec{{Name: "index", Kind: ParamIndex, Required: true}, {Name: "label", Kind: ParamString}},
		Handler: func(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
			invoked = true
			return schemas.ActionResult{}, nil
		},
	}))

	// Missing required param.
	_, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "typed"})
	var ipe *InvalidParamsError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "typed", ipe.Capability)
	assert.Equal(t, "index", ipe.Field)
	assert.False(t, invoked)

	// Wrong type for an optional param.
	_, err = c.Dispatch(context.Background(), schemas.ActionRequest{
		Name:   "typed",
		Params: map[string]interface{}{"index": 1.0, "label": 42.0},
	})
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "label", ipe.Field)
	assert.False(t, invoked)

	// Valid request reaches the handler.
	_, err = c.Dispatch(context.Background(), schemas.ActionRequest{
		Name:   "typed",
		Params: map[string]interface{}{"index": "[3]"},
	})
	require.NoError(t, err)
	assert.True(t, invoked)
}

func TestDispatch_PanicBecomesErrorResult(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{
		Name: "explodes",
		Handler: func(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
			panic("boom")
		},
	}))

	result, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "explodes"})
	require.NoError(t, err)
	assert.Contains(t, result.Error, "panicked")
	assert.Contains(t, result.Error, "boom")
}

func TestDispatch_UnexpectedHandlerErrorBecomesResult(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{
		Name: "fails",
		Handler: func(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
			return schemas.ActionResult{}, errors.New("target crashed")
		},
	}))

	result, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "fails"})
	require.NoError(t, err)
	assert.Equal(t, "target crashed", result.Error)
	assert.False(t, result.Status.Terminal())
}

func TestDispatch_EnforcesTerminalRegistration(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{
		Name: "sneaky",
		Handler: func(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
			return schemas.ActionResult{Status: schemas.StatusDone, Content: "done early"}, nil
		},
	}))

	result, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "sneaky"})
	require.NoError(t, err)
	assert.False(t, result.Status.Terminal())
	assert.Contains(t, result.Error, "not allowed to end the run")
}

func TestDispatch_TerminalCapabilityMayEndRun(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{
		Name:     "finish",
		Terminal: true,
		Handler: func(ctx context.Context, params ActionParams) (schemas.ActionResult, error) {
			return schemas.ActionResult{Status: schemas.StatusDone, Content: "all done"}, nil
		},
	}))

	result, err := c.Dispatch(context.Background(), schemas.ActionRequest{Name: "finish"})
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusDone, result.Status)
	assert.Equal(t, "all done", result.Content)
}

func TestDescriptions_ListsInRegistrationOrder(t *testing.T) {
	c := New(zap.NewNop())
	require.NoError(t, c.Register(Capability{Name: "b_action", Description: "does b", Handler: okHandler}))
	require.NoError(t, c.Register(Capability{Name: "a_action", Description: "does a", Handler: okHandler}))

	assert.Equal(t, []string{"b_action", "a_action"}, c.Names())
	desc := c.Descriptions()
	assert.Contains(t, desc, "- b_action: does b")
	assert.Less(t, strings.Index(desc, "b_action"), strings.Index(desc, "a_action"))
}
