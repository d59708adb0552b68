package runner

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/mech/internal/history"
	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/mech/mecherr"
	"github.com/haasonsaas/mech/internal/mech/provider"
	"github.com/haasonsaas/mech/internal/observability"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// Runner implements the Streaming Runner (4.C) and, via RunWithTools in
// tools.go, the Tool-Aware Runner (4.D).
type Runner struct {
	Registry          *provider.Registry
	Classes           ClassTable
	Scores            ScoreSource
	Rand              *rand.Rand
	InactivityTimeout time.Duration
	Logger            *observability.Logger

	// OnFallback, when set, is notified every time the runner switches away
	// from a failed model, for metrics/tracing (observability.Metrics.RecordModelFallback).
	OnFallback func(fromModel, toModel, reason string)

	// Metrics and Tracer are optional observability sinks around each
	// provider stream attempt. A nil value skips the instrumentation.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// RunStreamed runs a single turn (spec 4.C): selects a model, assembles
// messages, repairs the history, and relays provider events, falling back
// to another model on failure until one succeeds or candidates are
// exhausted.
func (r *Runner) RunStreamed(ctx context.Context, agent *mechagent.Agent, input string, hist []mechmodels.HistoryItem) <-chan mechmodels.Event {
	out := make(chan mechmodels.Event, 8)

	go func() {
		defer close(out)

		repaired := history.EnsureToolResultSequence(hist)

		model := SelectInitial(agent, r.Classes, r.Scores, r.Rand)
		if agent.Hooks.OnRequest != nil {
			if err := agent.Hooks.OnRequest(repaired, &model); err != nil && r.Logger != nil {
				r.Logger.Warn(ctx, "mech: onRequest hook failed", "error", err)
			}
		}
		tried := map[string]bool{}
		lastErr := ""

		for {
			if model == "" {
				out <- mechmodels.Event{Type: mechmodels.EventError, Error: mecherr.ErrNoModelAvailable.Error()}
				return
			}

			prov := r.Registry.For(model)
			if prov == nil {
				tried[model] = true
				lastErr = "no provider registered for model " + model
				next := NextFallback(agent, r.Classes, model, lastErr, tried)
				r.reportFallback(ctx, model, next, "error")
				model = next
				continue
			}

			req := provider.CompletionRequest{
				Model:        model,
				Instructions: agent.Instructions,
				History:      repaired,
				Input:        input,
				ToolChoice:   string(agent.ModelSettings.ToolChoice),
				Temperature:  agent.ModelSettings.Temperature,
			}
			if prov.SupportsTools(model) {
				req.Tools = toolSchemas(agent)
			}

			attemptStart := time.Now()
			attemptCtx, cancel := context.WithCancel(ctx)
			var attemptSpan trace.Span
			if r.Tracer != nil {
				attemptCtx, attemptSpan = r.Tracer.TraceLLMRequest(attemptCtx, prov.Name(), model)
			}
			stream, err := prov.Stream(attemptCtx, req)
			if err != nil {
				cancel()
				tried[model] = true
				lastErr = err.Error()
				r.recordLLMRequest(prov.Name(), model, "error", attemptStart)
				if attemptSpan != nil {
					r.Tracer.RecordError(attemptSpan, err)
					attemptSpan.End()
				}
				out <- mechmodels.Event{Type: mechmodels.EventError, Model: model, Error: lastErr}
				next := NextFallback(agent, r.Classes, model, lastErr, tried)
				r.reportFallback(ctx, model, next, classifyFallbackReason(lastErr))
				model = next
				continue
			}

			succeeded := true
			for event := range relayWithInactivityTimeout(stream, cancel, r.InactivityTimeout) {
				event.Model = model
				out <- event
				if event.Type == mechmodels.EventError {
					succeeded = false
					lastErr = event.Error
					tried[model] = true
				}
			}

			if succeeded {
				r.recordLLMRequest(prov.Name(), model, "ok", attemptStart)
				if attemptSpan != nil {
					attemptSpan.End()
				}
				return
			}
			r.recordLLMRequest(prov.Name(), model, "error", attemptStart)
			if attemptSpan != nil {
				attemptSpan.End()
			}
			next := NextFallback(agent, r.Classes, model, lastErr, tried)
			r.reportFallback(ctx, model, next, classifyFallbackReason(lastErr))
			model = next
		}
	}()

	return out
}

func (r *Runner) recordLLMRequest(providerName, model, status string, start time.Time) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.RecordLLMRequest(providerName, model, status, time.Since(start).Seconds(), 0, 0)
}

func (r *Runner) reportFallback(ctx context.Context, from, to, reason string) {
	if r.Logger != nil {
		r.Logger.Info(ctx, "mech: model fallback", "from", from, "to", to, "reason", reason)
	}
	if r.OnFallback != nil {
		r.OnFallback(from, to, reason)
	}
}

func classifyFallbackReason(errText string) string {
	if isRateLimitError(errText) {
		return "rate_limit"
	}
	return "error"
}

func toolSchemas(agent *mechagent.Agent) [][]byte {
	schemas := make([][]byte, 0, len(agent.Tools))
	for _, t := range agent.Tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}
