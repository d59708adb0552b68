// Package mechagent defines the Agent configuration type shared by the
// streaming runner, the MECH driver, and the metacognition agent,
// generalized from the teacher's models.Agent with the model-class
// rotation, tool-call bounding, and lifecycle-hook fields the spec
// requires (models.Agent has none of these; they are specific to the
// agentic run-loop domain rather than the teacher's channel/session
// domain).
package mechagent

import (
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// ToolChoice mirrors the provider tool-choice policy vocabulary.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// ModelSettings configures a single turn's request shape.
type ModelSettings struct {
	ToolChoice  ToolChoice
	JSONSchema  []byte // optional forced-output schema
	ForceJSON   bool
	Temperature float32
}

// Hooks are optional lifecycle callbacks. A nil hook is skipped; a
// returned error is logged and swallowed, never propagated into the run,
// per the spec's error-propagation rule for lifecycle hooks.
type Hooks struct {
	OnRequest  func(messages []mechmodels.HistoryItem, model *string) error
	OnResponse func(finalText string) error
	OnThinking func(content, signature string) error
	OnToolCall func(call mechmodels.ToolCall) error
	// OnToolResult receives the dispatcher's result for a call this agent
	// issued. TryDirectExecution, when non-nil, lets the agent short-circuit
	// a tool call without going through the provider round trip at all.
	OnToolResult       func(call mechmodels.ToolCall, result mechmodels.ToolResult) error
	TryDirectExecution func(call mechmodels.ToolCall) (result string, handled bool)
}

// Agent is a configured participant in a MECH run: the spec's Agent type.
// Agents are immutable once a run begins except for Model (reassigned each
// turn by rotation), HistoryThread (a per-agent pending scratch log), and
// ModelSettings.ToolChoice (transiently relaxed/forced by the tool-aware
// runner's recursion guard).
type Agent struct {
	ID           string
	Name         string
	Instructions string

	ModelClass   string
	PinnedModel  *string
	Model        *string // reassigned each turn by rotation; cleared after a turn completes

	Tools         []*toolsys.Descriptor
	ModelSettings ModelSettings

	MaxToolCallRoundsPerTurn int
	MaxToolCalls             int

	Hooks Hooks

	// HistoryThread is this agent's pending sub-thread, merged into the
	// main history store at the top of the next MECH iteration.
	HistoryThread []mechmodels.HistoryItem
}

// ToolMap indexes Tools by name for dispatch.
func (a *Agent) ToolMap() map[string]*toolsys.Descriptor {
	m := make(map[string]*toolsys.Descriptor, len(a.Tools))
	for _, t := range a.Tools {
		m[t.Name] = t
	}
	return m
}

// ToolNames returns the registered tool names in declaration order, for
// building a provider-bound tool list.
func (a *Agent) ToolNames() []string {
	names := make([]string, len(a.Tools))
	for i, t := range a.Tools {
		names[i] = t.Name
	}
	return names
}

// EffectiveModel returns PinnedModel if set, else the currently rotated
// Model, else nil to signal "let the runner pick".
func (a *Agent) EffectiveModel() *string {
	if a.PinnedModel != nil {
		return a.PinnedModel
	}
	return a.Model
}
