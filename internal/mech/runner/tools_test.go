package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/mech/provider"
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// scriptedProvider replays one scripted event sequence per call to Stream,
// in order, so a test can simulate a multi-turn tool-call conversation.
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
	p.calls++
	p.mu.Unlock()

	var events []mechmodels.Event
	if idx < len(p.scripts) {
		events = p.scripts[idx]
	}
	out := make(chan mechmodels.Event, len(events))
	for _, e := range events {
		out <- e
	}
	close(out)
	return out, nil
}

func newToolsRunner(p *scriptedProvider) *Runner {
	return &Runner{
		Registry: provider.NewRegistry(p),
		Classes:  ClassTable{"standard": {{ID: "scripted-model"}}},
	}
}

func TestRunWithToolsReturnsFinalResponseWhenNoToolCalls(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventMessageComplete, Content: "hello there"}},
	}}
	r := newToolsRunner(p)
	agent := &mechagent.Agent{ModelClass: "standard"}
	dispatcher := toolsys.NewDispatcher(nil)

	var got []mechmodels.Event
	for e := range r.RunWithTools(context.Background(), agent, "hi", nil, dispatcher, nil) {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "hello there", got[0].Content)
}

func TestRunWithToolsDispatchesAndRecurses(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventToolStart, ToolCalls: []mechmodels.ToolCall{
			{ID: "call-1", Name: "echo", Arguments: `{"text":"hi"}`},
		}}},
		{{Type: mechmodels.EventMessageComplete, Content: "done"}},
	}}
	r := newToolsRunner(p)
	agent := &mechagent.Agent{
		ModelClass: "standard",
		Tools: []*toolsys.Descriptor{
			{Name: "echo", Params: []toolsys.Param{{ExternalName: "text", Kind: toolsys.ParamString, Required: true}},
				Call: func(args []any) (any, error) { return args[0], nil }},
		},
	}
	dispatcher := toolsys.NewDispatcher(nil)

	var got []mechmodels.Event
	for e := range r.RunWithTools(context.Background(), agent, "hi", nil, dispatcher, nil) {
		got = append(got, e)
	}

	require.Len(t, got, 3)
	assert.Equal(t, mechmodels.EventToolStart, got[0].Type)
	assert.Equal(t, mechmodels.EventToolDone, got[1].Type)
	assert.Equal(t, "hi", got[1].ToolResults[0].Output)
	assert.Equal(t, "done", got[2].Content)
}

func TestRunWithToolsEmitsTaskCompleteSignal(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventToolStart, ToolCalls: []mechmodels.ToolCall{
			{ID: "call-1", Name: "task_complete", Arguments: `{"result":"all done"}`},
		}}},
	}}
	r := newToolsRunner(p)
	agent := &mechagent.Agent{
		ModelClass: "standard",
		Tools: []*toolsys.Descriptor{
			{Name: "task_complete", Params: []toolsys.Param{{ExternalName: "result", Kind: toolsys.ParamString, Required: true}},
				Call: func(args []any) (any, error) {
					result, _ := args[0].(string)
					return nil, toolsys.NewTaskCompleteSignal(result)
				}},
		},
	}
	dispatcher := toolsys.NewDispatcher(nil)

	var got []mechmodels.Event
	for e := range r.RunWithTools(context.Background(), agent, "hi", nil, dispatcher, nil) {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, mechmodels.EventToolStart, got[0].Type)
	assert.Equal(t, mechmodels.EventTaskComplete, got[1].Type)
	assert.Equal(t, "all done", got[1].Content)
}

func TestRunWithToolsResetsAgentModelAfterRun(t *testing.T) {
	p := &scriptedProvider{scripts: [][]mechmodels.Event{
		{{Type: mechmodels.EventMessageComplete, Content: "ok"}},
	}}
	r := newToolsRunner(p)
	pinned := "scripted-model"
	agent := &mechagent.Agent{ModelClass: "standard", PinnedModel: &pinned}
	dispatcher := toolsys.NewDispatcher(nil)

	for range r.RunWithTools(context.Background(), agent, "hi", nil, dispatcher, nil) {
	}
	assert.Nil(t, agent.Model)
}
