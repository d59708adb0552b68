package runner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/haasonsaas/mech/internal/mech/mecherr"
	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// RunWithTools implements the Tool-Aware Runner (spec 4.D): it drives
// RunStreamed, dispatches every tool_start it observes, and recurses with
// the extended history until a turn produces no further tool calls, the
// call budget is exhausted, or a task_complete/task_fatal_error signal ends
// the run. Every event RunStreamed and the dispatcher produce is forwarded
// downstream in order, plus a terminal EventTaskComplete/EventTaskFatalError
// when a signal tool fires.
func (r *Runner) RunWithTools(ctx context.Context, agent *mechagent.Agent, input string, hist []mechmodels.HistoryItem, dispatcher *toolsys.Dispatcher, injected map[string]any) <-chan mechmodels.Event {
	out := make(chan mechmodels.Event, 8)
	go func() {
		defer close(out)
		defer func() { agent.Model = nil }()
		r.runTurn(ctx, agent, input, hist, dispatcher, injected, 0, 0, out)
	}()
	return out
}

// runTurn bounds recursion two ways: callCount is the total number of
// individual tool calls dispatched so far this turn (agent.MaxToolCalls),
// round is the number of model round-trips taken so far
// (agent.MaxToolCallRoundsPerTurn) — a single round can still dispatch many
// calls at once, so the two limits are independent.
func (r *Runner) runTurn(ctx context.Context, agent *mechagent.Agent, input string, hist []mechmodels.HistoryItem, dispatcher *toolsys.Dispatcher, injected map[string]any, callCount, round int, out chan<- mechmodels.Event) {
	maxCalls := agent.MaxToolCalls
	maxRounds := agent.MaxToolCallRoundsPerTurn
	switch {
	case maxCalls > 0 && callCount >= maxCalls:
		agent.ModelSettings.ToolChoice = mechagent.ToolChoiceNone
	case maxRounds > 0 && round >= maxRounds:
		agent.ModelSettings.ToolChoice = mechagent.ToolChoiceNone
	case callCount > 0 || round > 0:
		agent.ModelSettings.ToolChoice = mechagent.ToolChoiceAuto
	}

	var fullResponse, thinkingResponse, thinkingSignature string
	var toolCalls []mechmodels.ToolCall
	model := ""
	fatal := false

	// RunStreamed only closes its channel once a model succeeds or every
	// fallback candidate is exhausted, retrying internally in between — an
	// EventError mid-stream does not mean the turn is over, so the loop
	// must drain to channel close rather than return on the first one.
	for event := range r.RunStreamed(ctx, agent, input, hist) {
		model = event.Model
		fatal = event.Type == mechmodels.EventError
		switch event.Type {
		case mechmodels.EventMessageDelta:
			fullResponse += event.Content
		case mechmodels.EventMessageComplete:
			if event.Content != "" {
				fullResponse = event.Content
			}
		case mechmodels.EventToolStart:
			toolCalls = append(toolCalls, event.ToolCalls...)
		}
		if event.ThinkingContent != "" {
			thinkingResponse += event.ThinkingContent
		}
		if event.ThinkingSignature != "" {
			thinkingSignature = event.ThinkingSignature
		}
		out <- event
	}
	if fatal {
		return
	}

	if thinkingResponse != "" && agent.Hooks.OnThinking != nil {
		if err := agent.Hooks.OnThinking(thinkingResponse, thinkingSignature); err != nil && r.Logger != nil {
			r.Logger.Warn(ctx, "mech: onThinking hook failed", "error", err)
		}
	}

	if len(toolCalls) == 0 {
		if agent.ModelSettings.ForceJSON && len(agent.ModelSettings.JSONSchema) > 0 {
			fullResponse = extractJSONObject(fullResponse)
		}
		if agent.Hooks.OnResponse != nil {
			_ = agent.Hooks.OnResponse(fullResponse)
		}
		return
	}

	// Calls TryDirectExecution handles never reach the dispatcher; results
	// are reassembled in original call order below.
	direct := make(map[string]mechmodels.ToolResult, len(toolCalls))
	remaining := toolCalls
	if agent.Hooks.TryDirectExecution != nil {
		remaining = nil
		for _, call := range toolCalls {
			if output, handled := agent.Hooks.TryDirectExecution(call); handled {
				direct[call.ID] = mechmodels.ToolResult{CallID: call.ID, Name: call.Name, Output: output}
				continue
			}
			remaining = append(remaining, call)
		}
	}

	var dispatched []mechmodels.ToolResult
	if len(remaining) > 0 {
		hooks := toolsys.Hooks{OnToolCall: agent.Hooks.OnToolCall, OnToolResult: agent.Hooks.OnToolResult}
		var err error
		dispatched, err = dispatcher.Dispatch(ctx, remaining, agent.ToolMap(), injected, hooks)
		if err != nil {
			r.emitSignal(err, model, out)
			return
		}
	}

	results := make([]mechmodels.ToolResult, 0, len(toolCalls))
	dispatchedByID := make(map[string]mechmodels.ToolResult, len(dispatched))
	for _, res := range dispatched {
		dispatchedByID[res.CallID] = res
	}
	for _, call := range toolCalls {
		if res, ok := direct[call.ID]; ok {
			results = append(results, res)
		} else if res, ok := dispatchedByID[call.ID]; ok {
			results = append(results, res)
		}
	}
	out <- mechmodels.Event{Type: mechmodels.EventToolDone, Model: model, ToolResults: results}

	nextHistory := buildRecursiveHistory(hist, input, thinkingResponse, thinkingSignature, fullResponse, toolCalls, results)
	r.runTurn(ctx, agent, "", nextHistory, dispatcher, injected, callCount+len(toolCalls), round+1, out)
}

// emitSignal translates a task_complete/task_fatal_error signal returned by
// the dispatcher into a terminal event so the driver can build a MechResult
// without importing mecherr's unexported signal machinery itself. Any other
// dispatch error (there should be none; Dispatch only returns signals or
// nil per its contract) is surfaced the same way, as a fatal error.
func (r *Runner) emitSignal(err error, model string, out chan<- mechmodels.Event) {
	if signal, ok := mecherr.AsSignal(err); ok {
		switch s := signal.(type) {
		case *mecherr.TaskCompleteSignal:
			out <- mechmodels.Event{Type: mechmodels.EventTaskComplete, Model: model, Content: s.Result}
			return
		case *mecherr.TaskFatalErrorSignal:
			out <- mechmodels.Event{Type: mechmodels.EventTaskFatalError, Model: model, Error: s.Reason}
			return
		}
	}
	out <- mechmodels.Event{Type: mechmodels.EventTaskFatalError, Model: model, Error: err.Error()}
}

// extractJSONObject recovers a forced-JSON response even when the model
// wraps it in prose or a fenced code block: it tries the raw text first,
// then a fenced ```json block, then the widest {...} substring, returning
// whichever parses as a JSON object.
func extractJSONObject(text string) string {
	candidates := []string{strings.TrimSpace(text)}

	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "\n")
		if end := strings.Index(rest, "```"); end != -1 {
			candidates = append(candidates, strings.TrimSpace(rest[:end]))
		}
	}

	if open := strings.Index(text, "{"); open != -1 {
		if closeIdx := strings.LastIndex(text, "}"); closeIdx > open {
			candidates = append(candidates, text[open:closeIdx+1])
		}
	}

	for _, candidate := range candidates {
		var probe any
		if json.Unmarshal([]byte(candidate), &probe) == nil {
			return candidate
		}
	}
	return text
}

func buildRecursiveHistory(prior []mechmodels.HistoryItem, input, thinkingContent, thinkingSignature, assistantText string, calls []mechmodels.ToolCall, results []mechmodels.ToolResult) []mechmodels.HistoryItem {
	next := make([]mechmodels.HistoryItem, 0, len(prior)+len(calls)*2+3)
	next = append(next, prior...)
	if input != "" {
		next = append(next, mechmodels.Message{Role: mechmodels.RoleUser, Content: input})
	}
	if thinkingContent != "" {
		next = append(next, mechmodels.Thinking{Content: thinkingContent, Signature: thinkingSignature})
	}
	if assistantText != "" {
		next = append(next, mechmodels.Message{Role: mechmodels.RoleAssistant, Content: assistantText})
	}
	resultByID := make(map[string]mechmodels.ToolResult, len(results))
	for _, res := range results {
		resultByID[res.CallID] = res
	}
	for _, call := range calls {
		next = append(next, mechmodels.FunctionCall{CallID: call.ID, Name: call.Name, Arguments: call.Arguments})
		if res, ok := resultByID[call.ID]; ok {
			next = append(next, mechmodels.FunctionCallOutput{CallID: res.CallID, Name: res.Name, Output: res.Output})
		}
	}
	return next
}
