package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// MockOracle is a testify mock for the Oracle interface.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Decide(ctx context.Context, history []schemas.Message, state *schemas.BrowserState) (schemas.AgentLLMOutput, error) {
	args := m.Called(ctx, history, state)
	return args.Get(0).(schemas.AgentLLMOutput), args.Error(1)
}

// MockDispatcher is a testify mock for the Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req schemas.ActionRequest) (schemas.ActionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.ActionResult), args.Error(1)
}

// MockStateProvider is a testify mock for the StateProvider interface.
type MockStateProvider struct {
	mock.Mock
}

func (m *MockStateProvider) RefreshState(ctx context.Context) (*schemas.BrowserState, error) {
	args := m.Called(ctx)
	if state := args.Get(0); state != nil {
		return state.(*schemas.BrowserState), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockLLMClient is a testify mock for the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
