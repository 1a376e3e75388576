package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/core"
)

func sumTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
}

func TestRegistry_ProcessToolCall(t *testing.T) {
	r := NewRegistry(sumTool())

	result, err := r.ProcessToolCall(context.Background(), core.ToolCall{
		ID:        "call-1",
		Name:      "calculate_sum",
		Arguments: `{"a": 2, "b": 3}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "5", result)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.ProcessToolCall(context.Background(), core.ToolCall{Name: "nope"})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "UNKNOWN_TOOL", toolErr.Code)
}

func TestRegistry_MalformedArguments(t *testing.T) {
	r := NewRegistry(sumTool())

	_, err := r.ProcessToolCall(context.Background(), core.ToolCall{
		Name:      "calculate_sum",
		Arguments: `{not json`,
	})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ValidatesRequiredParameters(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 1.0})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_WrapsExecutionError(t *testing.T) {
	failing := NewFunctionTool("fail", "always fails", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	)

	_, err := failing.Call(context.Background(), map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_PreservesCustomToolError(t *testing.T) {
	custom := NewFunctionTool("custom", "returns its own error", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) {
			return nil, NewToolError("custom", "rate limited", "RATE_LIMITED")
		},
	)

	_, err := custom.Call(context.Background(), map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

func TestRegistry_ToolsSortedByName(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFunctionTool("zeta", "", map[string]any{"type": "object"}, nil))
	r.Register(NewFunctionTool("alpha", "", map[string]any{"type": "object"}, nil))

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "alpha", tools[0].Name())
	assert.Equal(t, "zeta", tools[1].Name())
}
