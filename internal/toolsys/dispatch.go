package toolsys

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/mech/internal/mech/mecherr"
	"github.com/haasonsaas/mech/internal/observability"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// Hooks are the agent lifecycle callbacks the dispatcher invokes around
// each call. Both are best-effort: a returned error is logged and
// swallowed, never propagated into the tool result, per the spec's
// lifecycle-hook error-handling rule.
type Hooks struct {
	OnToolCall   func(call mechmodels.ToolCall) error
	OnToolResult func(call mechmodels.ToolCall, result mechmodels.ToolResult) error
}

// Dispatcher executes tool_start events concurrently against a resolved
// tool set, grounded on the teacher's ToolExecutor.ExecuteConcurrently:
// a semaphore-bounded fan-out with results written into a pre-sized slice
// by index so order is preserved regardless of completion order (IT1).
type Dispatcher struct {
	MaxConcurrency int
	Logger         *observability.Logger

	// Metrics and Tracer are optional observability sinks around each
	// individual tool call. A nil value skips the instrumentation.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// NewDispatcher returns a Dispatcher with a sane default concurrency bound.
func NewDispatcher(logger *observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Dispatcher{MaxConcurrency: 8, Logger: logger}
}

// Dispatch resolves and invokes every call in calls concurrently against
// tools, substituting values from injected for parameters marked Inject.
// It returns results in call order. If any handler returns a
// TaskComplete/TaskFatalError signal, Dispatch returns that signal as its
// error and the results slice is nil — per spec, signals bypass per-call
// error wrapping entirely and propagate to the MECH driver.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []mechmodels.ToolCall, tools map[string]*Descriptor, injected map[string]any, hooks Hooks) ([]mechmodels.ToolResult, error) {
	if len(calls) == 0 {
		return []mechmodels.ToolResult{}, nil
	}

	maxConcurrency := d.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	sem := make(chan struct{}, maxConcurrency)
	results := make([]mechmodels.ToolResult, len(calls))

	var wg sync.WaitGroup
	var signalOnce sync.Once
	var signalErr error

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call mechmodels.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, sig := d.dispatchOne(ctx, call, tools, injected, hooks)
			if sig != nil {
				signalOnce.Do(func() { signalErr = sig })
				return
			}
			results[i] = result
		}(i, call)
	}
	wg.Wait()

	if signalErr != nil {
		return nil, signalErr
	}
	return results, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call mechmodels.ToolCall, tools map[string]*Descriptor, injected map[string]any, hooks Hooks) (mechmodels.ToolResult, error) {
	ctx = observability.AddRequestID(ctx, call.ID)
	if d.Tracer != nil {
		var span trace.Span
		ctx, span = d.Tracer.TraceToolExecution(ctx, call.Name)
		defer span.End()
	}
	start := time.Now()
	status := "ok"
	defer func() {
		if d.Metrics != nil {
			d.Metrics.RecordToolExecution(call.Name, status, time.Since(start).Seconds())
		}
	}()

	if hooks.OnToolCall != nil {
		if err := hooks.OnToolCall(call); err != nil {
			d.Logger.Warn(ctx, "onToolCall hook failed", "tool", call.Name, "error", err)
		}
	}

	parsedArgs := map[string]any{}
	if err := json.Unmarshal([]byte(call.Arguments), &parsedArgs); err != nil {
		d.Logger.Warn(ctx, "tool arguments did not parse as JSON", "tool", call.Name, "error", err)
		parsedArgs = map[string]any{"_raw": call.Arguments}
	}

	descriptor, ok := tools[call.Name]
	if !ok {
		status = "not_found"
		return errorResult(call, fmt.Sprintf("Tool %s not found", call.Name)), nil
	}

	args, err := buildPositionalArgs(descriptor, parsedArgs, injected)
	if err != nil {
		status = "invalid_args"
		return errorResult(call, err.Error()), nil
	}

	value, err := descriptor.Call(args)
	if err != nil {
		if sig, ok := mecherr.AsSignal(err); ok {
			return mechmodels.ToolResult{}, sig
		}
		status = "error"
		if d.Metrics != nil {
			d.Metrics.RecordError("toolsys", call.Name)
		}
		return errorResult(call, err.Error()), nil
	}

	output := stringifyResult(value)
	result := mechmodels.ToolResult{CallID: call.ID, Name: call.Name, Output: output}

	if hooks.OnToolResult != nil {
		if err := hooks.OnToolResult(call, result); err != nil {
			d.Logger.Warn(ctx, "onToolResult hook failed", "tool", call.Name, "error", err)
		}
	}
	return result, nil
}

// errorResult builds the canonical {"error": "..."} dispatch error shape
// (the batcher's shape, chosen as canonical per the spec's open question).
func errorResult(call mechmodels.ToolCall, message string) mechmodels.ToolResult {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return mechmodels.ToolResult{CallID: call.ID, Name: call.Name, Output: string(raw), IsError: true}
}

func stringifyResult(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(raw)
}

// buildPositionalArgs walks the descriptor's parameter schema in declared
// order, coercing each argument to its declared type and substituting
// injected values for parameters marked Inject.
func buildPositionalArgs(d *Descriptor, parsed map[string]any, injected map[string]any) ([]any, error) {
	args := make([]any, len(d.Params))
	for i, p := range d.Params {
		if p.Inject {
			args[i] = injected[p.ExternalName]
			continue
		}
		raw, present := parsed[p.ExternalName]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.ExternalName)
			}
			args[i] = p.Default
			continue
		}
		coerced, err := coerce(p.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.ExternalName, err)
		}
		args[i] = coerced
	}
	return args, nil
}

func coerce(kind ParamKind, v any) (any, error) {
	switch kind {
	case ParamString, ParamEnum:
		switch t := v.(type) {
		case string:
			return t, nil
		default:
			return fmt.Sprintf("%v", t), nil
		}
	case ParamNumber:
		switch t := v.(type) {
		case float64:
			return t, nil
		case string:
			n, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", t)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("not a number: %v", t)
		}
	case ParamBoolean:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch t {
			case "true":
				return true, nil
			case "false":
				return false, nil
			default:
				return nil, fmt.Errorf("not a boolean: %q", t)
			}
		default:
			return nil, fmt.Errorf("not a boolean: %v", t)
		}
	default:
		return v, nil
	}
}

// NewSignalError lets callers (e.g. built-in task_complete/task_fatal_error
// tool handlers) return a signal through the ordinary error channel of a
// Handler without importing mecherr directly in every tool package.
func NewTaskCompleteSignal(result string) error {
	return &mecherr.TaskCompleteSignal{Result: result}
}

func NewTaskFatalErrorSignal(reason string) error {
	return &mecherr.TaskFatalErrorSignal{Reason: reason}
}
