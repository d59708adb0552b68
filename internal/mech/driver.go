package mech

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/mech/internal/history"
	"github.com/haasonsaas/mech/internal/mech/runner"
	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/observability"
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// StatusSource supplies the "System Status" developer message the driver
// pushes before every Tool-Aware Runner call (spec 4.E's Overseer prompt
// augmentation). A nil StatusSource on Driver renders each list empty.
type StatusSource interface {
	ActiveProjects() []string
	ActiveTasks() []string
	ShortTermMemories() []string
}

// Metacognition is invoked when llmRequestCount % metaFrequency == 0. It is
// a hook rather than a direct import of internal/mech/metacog so that this
// package's only dependency on the metacognition agent is through the
// closures Driver supplies it (see metacog.Setters), avoiding a cycle.
type Metacognition func(ctx context.Context, historyDescription string, setters MetacogSetters)

// MetacogSetters exposes the State mutations the metacognition agent's
// tools are allowed to perform.
type MetacogSetters struct {
	InjectThought    func(content string)
	SetMetaFrequency func(freq int)
	SetThoughtDelay  func(seconds int)
	SetModelScore    func(modelID string, score int)
	DisableModel     func(modelID string, disabled bool)
}

// Driver runs the MECH outer loop (spec 4.E). Run assigns its per-run State
// as Runner.Scores for the duration of the call, so a single Driver must
// not be used for two concurrent Run calls sharing the same Runner.
type Driver struct {
	History    *history.Store
	Runner     *runner.Runner
	Dispatcher *toolsys.Dispatcher
	Classes    runner.ClassTable

	// CostFn reports the running total cost so Driver.Run can compute
	// totalCost as a baseline delta, grounded on the teacher's usage
	// Tracker's running-total accounting.
	CostFn func() float64

	// Closed reports whether the owning transport has gone away, ending the
	// loop at the next iteration boundary (spec 5's transport-close guard).
	Closed func() bool

	Status        StatusSource
	Metacog       Metacognition
	Rand          *rand.Rand
	HistoryWindow int // items considered when describing history to metacognition

	// Metrics and Tracer are optional observability sinks. A nil value
	// skips the corresponding instrumentation rather than erroring.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Run executes one MECH run to completion (spec 4.E). When loop is false
// the driver performs exactly one iteration regardless of mechComplete.
func (d *Driver) Run(ctx context.Context, agent *mechagent.Agent, input string, loop bool, fixedModel *string) (mechmodels.MechResult, error) {
	costBaseline := 0.0
	if d.CostFn != nil {
		costBaseline = d.CostFn()
	}
	state := newState(costBaseline)
	d.Runner.Scores = state

	runID := fmt.Sprintf("%s-%d", agent.ID, time.Now().UnixNano())
	ctx = observability.AddSessionID(ctx, runID)
	ctx = observability.AddAgentID(ctx, agent.ID)

	if d.Metrics != nil {
		d.Metrics.DriverStarted()
		defer d.Metrics.DriverStopped()
	}

	injected := map[string]any{"agent_id": agent.ID}
	agent.Tools = append([]*toolsys.Descriptor{
		taskCompleteDescriptor(),
		taskFatalErrorDescriptor(),
	}, agent.Tools...)

	d.History.Append(mechmodels.Message{Role: mechmodels.RoleUser, Content: input})

	var outcome *mechmodels.MechResult
	first := true

	for outcome == nil && (loop || first) && !d.transportClosed() {
		first = false

		d.History.DrainThreads()

		count := state.incrementRequestCount()

		tickCtx := ctx
		var tickSpan trace.Span
		if d.Tracer != nil {
			tickCtx, tickSpan = d.Tracer.TraceMECHTick(ctx, agent.ID, count)
		}

		if d.Metacog != nil && state.shouldRunMetacognition(count) {
			d.runMetacognition(tickCtx, state)
		}

		d.rotateModel(agent, state, fixedModel)

		d.pushSystemStatus(agent, state)

		hist := d.History.Snapshot()
		for event := range d.Runner.RunWithTools(tickCtx, agent, "", hist, d.Dispatcher, injected) {
			switch event.Type {
			case mechmodels.EventTaskComplete:
				outcome = &mechmodels.MechResult{Status: mechmodels.ResultComplete, Result: event.Content}
			case mechmodels.EventTaskFatalError:
				outcome = &mechmodels.MechResult{Status: mechmodels.ResultFatalError, Error: event.Error}
			}
			if event.Model != "" {
				state.noteModelUsed(event.Model)
			}
		}
		if tickSpan != nil {
			if outcome != nil && outcome.Status == mechmodels.ResultFatalError && d.Tracer != nil {
				d.Tracer.RecordError(tickSpan, fmt.Errorf("%s", outcome.Error))
			}
			tickSpan.End()
		}

		if outcome == nil {
			d.sleepThoughtDelay(ctx, state, agent.ID)
		}
	}

	if d.Metrics != nil {
		status := "completed"
		if outcome != nil && outcome.Status == mechmodels.ResultFatalError {
			status = "fatal_error"
		}
		d.Metrics.RecordRunAttempt(status)
	}

	if outcome == nil {
		outcome = &mechmodels.MechResult{Status: mechmodels.ResultComplete, Result: ""}
	}
	outcome.History = d.History.Snapshot()
	outcome.DurationSec = state.elapsed().Seconds()
	if d.CostFn != nil {
		outcome.TotalCost = d.CostFn() - state.costBaseline
	}
	return *outcome, nil
}

func (d *Driver) transportClosed() bool {
	return d.Closed != nil && d.Closed()
}

func (d *Driver) runMetacognition(ctx context.Context, state *State) {
	window := d.HistoryWindow
	if window <= 0 {
		window = 40
	}
	setters := MetacogSetters{
		InjectThought: func(content string) {
			d.History.Append(mechmodels.Message{Role: mechmodels.RoleDeveloper, Content: "[priority] " + content})
		},
		SetMetaFrequency: state.SetMetaFrequency,
		SetThoughtDelay:  state.SetThoughtDelay,
		SetModelScore:    state.SetModelScore,
		DisableModel:     state.DisableModel,
	}
	var tickSpan trace.Span
	if d.Tracer != nil {
		ctx, tickSpan = d.Tracer.TraceMetacognition(ctx, "metacognition")
		defer tickSpan.End()
	}
	d.Metacog(ctx, d.History.Describe(window), setters)
}

func (d *Driver) rotateModel(agent *mechagent.Agent, state *State, fixedModel *string) {
	agent.ModelSettings = mechagent.ModelSettings{ToolChoice: mechagent.ToolChoiceAuto}
	switch {
	case fixedModel != nil:
		agent.Model = fixedModel
	case agent.ModelClass == "monologue":
		candidates := d.Classes["monologue"]
		prev := state.previousModel()
		var pool []string
		for _, c := range candidates {
			if c.ID != prev {
				pool = append(pool, c.ID)
			}
		}
		if len(pool) == 0 {
			for _, c := range candidates {
				pool = append(pool, c.ID)
			}
		}
		if len(pool) > 0 {
			rng := d.Rand
			if rng == nil {
				rng = rand.New(rand.NewSource(time.Now().UnixNano()))
			}
			picked := pool[rng.Intn(len(pool))]
			agent.Model = &picked
		}
	default:
		agent.Model = nil // let the streaming runner's weighted pick decide
	}
}

func (d *Driver) pushSystemStatus(agent *mechagent.Agent, state *State) {
	var projects, tasks, memories []string
	if d.Status != nil {
		projects = d.Status.ActiveProjects()
		tasks = d.Status.ActiveTasks()
		memories = d.Status.ShortTermMemories()
	}

	status := fmt.Sprintf(
		"System Status\ntime: %s\nelapsed: %s\nthought_delay: %s\nactive_projects: %s\nactive_tasks: %s\nactive_tools: %s\nshort_term_memories: %s",
		time.Now().Format(time.RFC3339),
		state.elapsed().Round(time.Second),
		state.currentThoughtDelay(),
		joinOrNone(projects),
		joinOrNone(tasks),
		joinOrNone(agent.ToolNames()),
		joinOrNone(memories),
	)
	d.History.Append(mechmodels.Message{Role: mechmodels.RoleDeveloper, Content: status})

	if guide := d.promptGuide(agent); guide != "" {
		d.History.Append(mechmodels.Message{Role: mechmodels.RoleDeveloper, Content: guide})
	}
}

// promptGuide injects at most one temporary nudge thought with probability
// 0.1, per spec 4.E's Overseer prompt augmentation.
func (d *Driver) promptGuide(agent *mechagent.Agent) string {
	rng := d.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if rng.Float64() >= 0.1 {
		return ""
	}
	nudges := []string{
		"It has been a while since you last replied to the user; consider whether a check-in is due.",
		"No urgent task is pending; let your attention wander to unfinished projects.",
		"You recently replied to the user; continue your current line of work without repeating yourself.",
	}
	return nudges[rng.Intn(len(nudges))]
}

func (d *Driver) sleepThoughtDelay(ctx context.Context, state *State, agentID string) {
	d.History.Append(mechmodels.Message{Role: mechmodels.RoleDeveloper, Content: "process_updated"})

	requested := state.currentThoughtDelay()
	if requested <= 0 {
		return
	}
	if d.Metrics != nil {
		d.Metrics.RecordThoughtDelay(agentID, requested.Seconds())
	}

	remaining := requested
	const chunk = 100 * time.Millisecond
	ticker := time.NewTicker(chunk)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining -= chunk
			if state.consumeInterrupt() {
				return
			}
		}
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func taskCompleteDescriptor() *toolsys.Descriptor {
	return &toolsys.Descriptor{
		Name:        "task_complete",
		Description: "Signal that the current task is finished successfully.",
		Params: []toolsys.Param{
			{ExternalName: "result", Kind: toolsys.ParamString, Description: "The final result to report.", Required: true},
		},
		Call: func(args []any) (any, error) {
			result, _ := args[0].(string)
			return nil, toolsys.NewTaskCompleteSignal(result)
		},
	}
}

func taskFatalErrorDescriptor() *toolsys.Descriptor {
	return &toolsys.Descriptor{
		Name:        "task_fatal_error",
		Description: "Signal that the current task cannot be completed.",
		Params: []toolsys.Param{
			{ExternalName: "error", Kind: toolsys.ParamString, Description: "Why the task failed.", Required: true},
		},
		Call: func(args []any) (any, error) {
			reason, _ := args[0].(string)
			return nil, toolsys.NewTaskFatalErrorSignal(reason)
		},
	}
}
