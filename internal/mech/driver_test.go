package mech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/mech/internal/history"
	"github.com/haasonsaas/mech/internal/mech/provider"
	"github.com/haasonsaas/mech/internal/mech/runner"
	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// scriptedProvider replays one scripted event sequence per call to Stream,
// in order, cycling back to the last script once exhausted so a loop=true
// driver run can keep ticking without the provider running dry.
type scriptedProvider struct {
	mu      sync.Mutex
	scripts [][]mechmodels.Event
	calls   int
}

func (p *scriptedProvider) Name() string                    { return "scripted" }
func (p *scriptedProvider) Models() []string                { return []string{"scripted-model"} }
func (p *scriptedProvider) SupportsTools(model string) bool { return true }

func (p *scriptedProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan mechmodels.Event, error) {
	p.mu.Lock()
	idx := p.calls
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	p.calls++
	p.mu.Unlock()

	events := p.scripts[idx]
	out := make(chan mechmodels.Event, len(events))
	for _, e := range events {
		out <- e
	}
	close(out)
	return out, nil
}

func taskCompleteTool() *toolsys.Descriptor {
	return &toolsys.Descriptor{
		Name: "task_complete",
		Params: []toolsys.Param{
			{ExternalName: "result", Kind: toolsys.ParamString, Required: true},
		},
		Call: func(args []any) (any, error) {
			result, _ := args[0].(string)
			return nil, toolsys.NewTaskCompleteSignal(result)
		},
	}
}

func newTestDriver(p *scriptedProvider) *Driver {
	rn := &runner.Runner{
		Registry: provider.NewRegistry(p),
		Classes:  runner.ClassTable{"standard": {{ID: "scripted-model"}}},
	}
	return &Driver{
		History:       history.NewStore(),
		Runner:        rn,
		Dispatcher:    toolsys.NewDispatcher(nil),
		Classes:       rn.Classes,
		CostFn:        func() float64 { return 0 },
		HistoryWindow: 10,
	}
}

func TestDriverRunCompletesOnTaskCompleteSignal(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventToolStart, ToolCalls: []mechmodels.ToolCall{
			{ID: "1", Name: "task_complete", Arguments: `{"result":"finished"}`},
		}}},
	}}
	d := newTestDriver(p)
	agent := &mechagent.Agent{ModelClass: "standard"}

	result, err := d.Run(context.Background(), agent, "do the thing", true, nil)
	require.NoError(t, err)
	assert.Equal(t, mechmodels.ResultComplete, result.Status)
	assert.Equal(t, "finished", result.Result)
}

func TestDriverRunCompletesOnTaskFatalErrorSignal(t *testing.T) {
	fatalTool := &toolsys.Descriptor{
		Name:   "task_fatal_error",
		Params: []toolsys.Param{{ExternalName: "error", Kind: toolsys.ParamString, Required: true}},
		Call: func(args []any) (any, error) {
			reason, _ := args[0].(string)
			return nil, toolsys.NewTaskFatalErrorSignal(reason)
		},
	}
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventToolStart, ToolCalls: []mechmodels.ToolCall{
			{ID: "1", Name: "task_fatal_error", Arguments: `{"error":"cannot proceed"}`},
		}}},
	}}
	d := newTestDriver(p)
	agent := &mechagent.Agent{ModelClass: "standard", Tools: []*toolsys.Descriptor{fatalTool}}

	result, err := d.Run(context.Background(), agent, "do the thing", true, nil)
	require.NoError(t, err)
	assert.Equal(t, mechmodels.ResultFatalError, result.Status)
	assert.Equal(t, "cannot proceed", result.Error)
}

func TestDriverRunSingleIterationWhenLoopFalse(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventMessageComplete, Content: "just a reply"}},
	}}
	d := newTestDriver(p)
	agent := &mechagent.Agent{ModelClass: "standard"}

	result, err := d.Run(context.Background(), agent, "hi", false, nil)
	require.NoError(t, err)
	assert.Equal(t, mechmodels.ResultComplete, result.Status)
	assert.Equal(t, 1, p.calls)
}

func TestDriverRunInvokesMetacognitionOnCadence(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventMessageComplete, Content: "reply 1"}},
		{{Type: mechmodels.EventMessageComplete, Content: "reply 2"}},
		{{Type: mechmodels.EventMessageComplete, Content: "reply 3"}},
		{{Type: mechmodels.EventMessageComplete, Content: "reply 4"}},
		{{Type: mechmodels.EventToolStart, ToolCalls: []mechmodels.ToolCall{
			{ID: "1", Name: "task_complete", Arguments: `{"result":"done"}`},
		}}},
	}}
	d := newTestDriver(p)

	var calls int
	d.Metacog = func(ctx context.Context, historyDescription string, setters MetacogSetters) {
		calls++
	}
	agent := &mechagent.Agent{ModelClass: "standard"}

	_, err := d.Run(context.Background(), agent, "hi", true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "metacognition should fire exactly once, on the 5th request with the default frequency of 5")
	assert.Equal(t, 5, p.calls)
}

func TestDriverRunStopsWhenTransportClosed(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventMessageComplete, Content: "reply"}},
	}}
	d := newTestDriver(p)
	d.Closed = func() bool { return true }
	agent := &mechagent.Agent{ModelClass: "standard"}

	result, err := d.Run(context.Background(), agent, "hi", true, nil)
	require.NoError(t, err)
	assert.Equal(t, mechmodels.ResultComplete, result.Status)
	assert.Equal(t, "", result.Result)
}

func TestDriverRunHonorsFixedModel(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventMessageComplete, Content: "ok"}},
	}}
	d := newTestDriver(p)
	agent := &mechagent.Agent{ModelClass: "standard"}
	fixed := "scripted-model"

	result, err := d.Run(context.Background(), agent, "hi", false, &fixed)
	require.NoError(t, err)
	assert.Equal(t, mechmodels.ResultComplete, result.Status)
}

func TestStateInterruptDelayEndsSleepEarly(t *testing.T) {
	state := newState(0)
	state.SetThoughtDelay(2)

	done := make(chan struct{})
	go func() {
		d := &Driver{History: history.NewStore()}
		d.sleepThoughtDelay(context.Background(), state, "agent-1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	state.InterruptDelay()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("sleepThoughtDelay did not honor InterruptDelay")
	}
}
