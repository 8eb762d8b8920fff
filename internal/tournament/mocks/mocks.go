// internal/tournament/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// MockLLMClient is a testify mock of schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ScriptedLLMClient returns canned responses in order, then empty strings.
// Useful when a test cares about the sequence of policy invocations rather
// than the request contents.
type ScriptedLLMClient struct {
	Responses []string
	Calls     int
}

func (s *ScriptedLLMClient) Generate(_ context.Context, _ schemas.GenerationRequest) (string, error) {
	s.Calls++
	if s.Calls <= len(s.Responses) {
		return s.Responses[s.Calls-1], nil
	}
	return "", nil
}

func (s *ScriptedLLMClient) Close() error { return nil }
