package toolsys

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/mech/internal/mech/mecherr"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

func call(id, name, args string) mechmodels.ToolCall {
	return mechmodels.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestDispatchPreservesCallOrder(t *testing.T) {
	d := NewDispatcher(nil)
	tools := map[string]*Descriptor{
		"slow": {Name: "slow", Params: []Param{{ExternalName: "n", Kind: ParamNumber, Required: true}},
			Call: func(args []any) (any, error) { return args[0], nil }},
	}
	calls := []mechmodels.ToolCall{
		call("1", "slow", `{"n":1}`),
		call("2", "slow", `{"n":2}`),
		call("3", "slow", `{"n":3}`),
	}

	results, err := d.Dispatch(context.Background(), calls, tools, nil, Hooks{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "1", results[0].Output)
	assert.Equal(t, "2", results[1].Output)
	assert.Equal(t, "3", results[2].Output)
}

func TestDispatchUnknownToolReturnsCanonicalErrorShape(t *testing.T) {
	d := NewDispatcher(nil)
	results, err := d.Dispatch(context.Background(), []mechmodels.ToolCall{call("1", "missing", `{}`)}, nil, nil, Hooks{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(results[0].Output), &payload))
	assert.Contains(t, payload["error"], "missing")
}

func TestDispatchInjectsRuntimeValues(t *testing.T) {
	d := NewDispatcher(nil)
	tools := map[string]*Descriptor{
		"whoami": {Name: "whoami", Params: []Param{{ExternalName: "agent_id", Inject: true}},
			Call: func(args []any) (any, error) { return args[0], nil }},
	}
	injected := map[string]any{"agent_id": "agent-42"}

	results, err := d.Dispatch(context.Background(), []mechmodels.ToolCall{call("1", "whoami", `{}`)}, tools, injected, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, "agent-42", results[0].Output)
}

func TestDispatchShortCircuitsOnTaskCompleteSignal(t *testing.T) {
	d := NewDispatcher(nil)
	tools := map[string]*Descriptor{
		"task_complete": {Name: "task_complete",
			Call: func(args []any) (any, error) { return nil, NewTaskCompleteSignal("done") }},
		"noop": {Name: "noop", Call: func(args []any) (any, error) { return "noop", nil }},
	}
	calls := []mechmodels.ToolCall{
		call("1", "task_complete", `{}`),
		call("2", "noop", `{}`),
	}

	results, err := d.Dispatch(context.Background(), calls, tools, nil, Hooks{})
	assert.Nil(t, results)
	require.Error(t, err)

	signal, ok := mecherr.AsSignal(err)
	require.True(t, ok)
	complete, ok := signal.(*mecherr.TaskCompleteSignal)
	require.True(t, ok)
	assert.Equal(t, "done", complete.Result)
}

func TestDispatchMissingRequiredArgumentErrorsPerCall(t *testing.T) {
	d := NewDispatcher(nil)
	tools := map[string]*Descriptor{
		"needs_arg": {Name: "needs_arg", Params: []Param{{ExternalName: "x", Kind: ParamString, Required: true}},
			Call: func(args []any) (any, error) { return "unreachable", nil }},
	}

	results, err := d.Dispatch(context.Background(), []mechmodels.ToolCall{call("1", "needs_arg", `{}`)}, tools, nil, Hooks{})
	require.NoError(t, err)
	assert.True(t, results[0].IsError)
}

func TestDispatchEmptyCallsReturnsEmptySlice(t *testing.T) {
	d := NewDispatcher(nil)
	results, err := d.Dispatch(context.Background(), nil, nil, nil, Hooks{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDispatchHonorsHooks(t *testing.T) {
	d := NewDispatcher(nil)
	tools := map[string]*Descriptor{
		"noop": {Name: "noop", Call: func(args []any) (any, error) { return "ok", nil }},
	}

	var calledBefore, calledAfter mechmodels.ToolCall
	hooks := Hooks{
		OnToolCall: func(c mechmodels.ToolCall) error { calledBefore = c; return nil },
		OnToolResult: func(c mechmodels.ToolCall, r mechmodels.ToolResult) error {
			calledAfter = c
			return nil
		},
	}

	_, err := d.Dispatch(context.Background(), []mechmodels.ToolCall{call("1", "noop", `{}`)}, tools, nil, hooks)
	require.NoError(t, err)
	assert.Equal(t, "noop", calledBefore.Name)
	assert.Equal(t, "noop", calledAfter.Name)
}
