// Package metacog implements the Metacognition Agent (spec 4.F): a single
// bounded turn, spawned by the MECH driver every metaFrequency requests,
// that observes the drained main history and tunes the driver's run-state
// knobs through a fixed set of tools. Grounded on the teacher's
// internal/multiagent/supervisor.go (a supervisor agent that spawns a
// narrowly-scoped sub-agent with its own tool set and a single bounded
// turn) and subagent_registry.go (the sub-agent construction idiom).
package metacog

import (
	"context"
	"fmt"

	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/mech/runner"
	"github.com/haasonsaas/mech/internal/observability"
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// Setters are the run-state mutations metacognition's tools are allowed to
// perform. This mirrors mech.MetacogSetters field-for-field; it is defined
// independently here (rather than imported) so this package never depends
// on internal/mech, which in turn depends on metacog via the
// mech.Metacognition hook — keeping the dependency one-directional.
type Setters struct {
	InjectThought    func(content string)
	SetMetaFrequency func(freq int)
	SetThoughtDelay  func(seconds int)
	SetModelScore    func(modelID string, score int)
	DisableModel     func(modelID string, disabled bool)
}

const instructionsTemplate = `You are the metacognition observer for an autonomous agent. You do not
perform the agent's task yourself; you only observe its recent activity and
decide whether to tune its run parameters. Call no_changes_needed if nothing
needs adjusting. Recent history:

%s`

// Spawn constructs a fresh metacognition Agent, runs exactly one bounded
// tool-call turn, and applies whatever tuning the agent decides through
// setters. Errors are logged and swallowed — metacognition failures are
// never fatal to the parent MECH run. metrics, when non-nil, records which
// tuning tool (or "error") fired as the outcome of this run.
func Spawn(ctx context.Context, rn *runner.Runner, dispatcher *toolsys.Dispatcher, historyDescription string, setters Setters, logger *observability.Logger, metrics *observability.Metrics) {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}

	outcome := "none"
	agent := &mechagent.Agent{
		ID:                       "metacognition",
		Name:                     "metacognition",
		Instructions:             fmt.Sprintf(instructionsTemplate, historyDescription),
		ModelClass:               "metacognition",
		MaxToolCallRoundsPerTurn: 1,
		MaxToolCalls:             1,
		ModelSettings:            mechagent.ModelSettings{ToolChoice: mechagent.ToolChoiceRequired},
		Tools:                    tuningTools(setters, &outcome),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "metacognition: recovered from panic", "panic", r)
			outcome = "error"
		}
		if metrics != nil {
			metrics.RecordMetacognitionRun(outcome)
		}
	}()

	for event := range rn.RunWithTools(ctx, agent, "", nil, dispatcher, nil) {
		if event.Type == mechmodels.EventError {
			logger.Warn(ctx, "metacognition: run error", "error", event.Error)
			outcome = "error"
		}
	}
}

func tuningTools(s Setters, outcome *string) []*toolsys.Descriptor {
	record := func(name string) { *outcome = name }
	return []*toolsys.Descriptor{
		{
			Name:        "inject_thought",
			Description: "Insert a high-priority developer thought into the agent's next turn.",
			Params: []toolsys.Param{
				{ExternalName: "content", Kind: toolsys.ParamString, Required: true},
			},
			Call: func(args []any) (any, error) {
				record("inject_thought")
				content, _ := args[0].(string)
				if s.InjectThought != nil {
					s.InjectThought(content)
				}
				return "thought injected", nil
			},
		},
		{
			Name:        "set_meta_frequency",
			Description: "Set how often (in LLM requests) metacognition runs. Nearest of {5,10,20,40}.",
			Params: []toolsys.Param{
				{ExternalName: "freq", Kind: toolsys.ParamNumber, Required: true},
			},
			Call: func(args []any) (any, error) {
				record("set_meta_frequency")
				freq := toInt(args[0])
				if s.SetMetaFrequency != nil {
					s.SetMetaFrequency(freq)
				}
				return "meta frequency updated", nil
			},
		},
		{
			Name:        "set_thought_delay",
			Description: "Set the idle delay, in seconds, between MECH ticks. Nearest of {0,2,4,8,16,32,64,128}.",
			Params: []toolsys.Param{
				{ExternalName: "seconds", Kind: toolsys.ParamNumber, Required: true},
			},
			Call: func(args []any) (any, error) {
				record("set_thought_delay")
				seconds := toInt(args[0])
				if s.SetThoughtDelay != nil {
					s.SetThoughtDelay(seconds)
				}
				return "thought delay updated", nil
			},
		},
		{
			Name:        "set_model_score",
			Description: "Set a model's selection weight, 0-100.",
			Params: []toolsys.Param{
				{ExternalName: "modelId", Kind: toolsys.ParamString, Required: true},
				{ExternalName: "score", Kind: toolsys.ParamNumber, Required: true},
			},
			Call: func(args []any) (any, error) {
				record("set_model_score")
				modelID, _ := args[0].(string)
				score := toInt(args[1])
				if s.SetModelScore != nil {
					s.SetModelScore(modelID, score)
				}
				return "model score updated", nil
			},
		},
		{
			Name:        "disable_model",
			Description: "Disable or re-enable a model from being selected.",
			Params: []toolsys.Param{
				{ExternalName: "modelId", Kind: toolsys.ParamString, Required: true},
				{ExternalName: "disabled", Kind: toolsys.ParamBoolean, Required: true, Default: true},
			},
			Call: func(args []any) (any, error) {
				record("disable_model")
				modelID, _ := args[0].(string)
				disabled, _ := args[1].(bool)
				if s.DisableModel != nil {
					s.DisableModel(modelID, disabled)
				}
				return "model availability updated", nil
			},
		},
		{
			Name:        "no_changes_needed",
			Description: "Report that no tuning is necessary this cycle.",
			Call: func(args []any) (any, error) {
				record("no_changes_needed")
				return "no changes", nil
			},
		},
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}
