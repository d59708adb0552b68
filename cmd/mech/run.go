package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/mech/internal/builtintools"
	"github.com/haasonsaas/mech/internal/config"
	"github.com/haasonsaas/mech/internal/history"
	"github.com/haasonsaas/mech/internal/mech"
	"github.com/haasonsaas/mech/internal/mech/metacog"
	"github.com/haasonsaas/mech/internal/mech/provider"
	"github.com/haasonsaas/mech/internal/mech/runner"
	"github.com/haasonsaas/mech/internal/mechagent"
	"github.com/haasonsaas/mech/internal/memorystore"
	"github.com/haasonsaas/mech/internal/observability"
	"github.com/haasonsaas/mech/internal/toolsys"
	"github.com/haasonsaas/mech/pkg/mechmodels"
)

func runRun(cmd *cobra.Command, configPath, input string, loop bool, fixedModel string, debug bool) error {
	level := "info"
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: "json",
		Output: os.Stderr,
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	registry := provider.NewRegistry(
		provider.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Models),
		provider.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Models),
	)

	classes := runner.ClassTable{}
	for class, models := range cfg.ModelClasses {
		specs := make([]runner.ModelSpec, len(models))
		for i, m := range models {
			specs[i] = runner.ModelSpec{ID: m.ID, RateLimitFallback: m.RateLimitFallback}
		}
		classes[class] = specs
	}

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "mech",
		ServiceVersion: version,
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplingRate:   1.0,
	})
	defer shutdownTracer(context.Background())
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	rn := &runner.Runner{
		Registry: registry,
		Classes:  classes,
		Rand:     rnd,
		Logger:   logger,
		OnFallback: func(from, to, reason string) {
			metrics.RecordModelFallback(from, to, reason)
		},
		Metrics: metrics,
		Tracer:  tracer,
	}

	dispatcher := toolsys.NewDispatcher(logger)
	dispatcher.MaxConcurrency = cfg.ToolConcurrency
	dispatcher.Metrics = metrics
	dispatcher.Tracer = tracer

	memStore := memorystore.New(cfg.MemoryRoot)
	toolRegistry := toolsys.NewRegistry()
	for _, t := range builtintools.Memory(memStore) {
		if err := toolRegistry.Register(t); err != nil {
			return fmt.Errorf("registering builtin tool %q: %w", t.Name, err)
		}
	}

	store := history.NewStore()

	agent := &mechagent.Agent{
		ID:                       cfg.ProcessID,
		Name:                     cfg.AIName,
		Instructions:             fmt.Sprintf("You are %s, the Overseer assisting %s.", cfg.AIName, cfg.YourName),
		ModelClass:               "standard",
		Tools:                    toolRegistry.All(),
		MaxToolCalls:             cfg.MaxToolCalls,
		MaxToolCallRoundsPerTurn: cfg.MaxToolCalls,
	}

	driver := &mech.Driver{
		History:       store,
		Runner:        rn,
		Dispatcher:    dispatcher,
		Classes:       classes,
		CostFn:        func() float64 { return 0 },
		Rand:          rnd,
		HistoryWindow: 40,
		Status: statusSource{
			memories: memStore,
		},
		Metacog: func(ctx context.Context, historyDescription string, setters mech.MetacogSetters) {
			metacog.Spawn(ctx, rn, dispatcher, historyDescription, metacog.Setters{
				InjectThought:    setters.InjectThought,
				SetMetaFrequency: setters.SetMetaFrequency,
				SetThoughtDelay:  setters.SetThoughtDelay,
				SetModelScore:    setters.SetModelScore,
				DisableModel:     setters.DisableModel,
			}, logger, metrics)
		},
		Metrics: metrics,
		Tracer:  tracer,
	}

	var modelPtr *string
	if fixedModel != "" {
		modelPtr = &fixedModel
	}

	ctx := cmd.Context()
	result, err := driver.Run(ctx, agent, input, loop, modelPtr)
	if err != nil {
		return err
	}

	fmt.Printf("status: %s\n", result.Status)
	if result.Result != "" {
		fmt.Printf("result: %s\n", result.Result)
	}
	if result.Error != "" {
		fmt.Printf("error: %s\n", result.Error)
	}
	fmt.Printf("duration: %.2fs cost: %.4f\n", result.DurationSec, result.TotalCost)
	return nil
}

// statusSource adapts memorystore into mech.StatusSource. Active
// projects/tasks are out of this CLI's scope (no project tracker is wired
// up yet), so they always report empty.
type statusSource struct {
	memories *memorystore.Store
}

func (s statusSource) ActiveProjects() []string    { return nil }
func (s statusSource) ActiveTasks() []string       { return nil }
func (s statusSource) ShortTermMemories() []string { return s.memories.ShortTermContents() }

func runToolsList(cmd *cobra.Command) error {
	memStore := memorystore.New(config.Default().MemoryRoot)
	for _, t := range builtintools.Memory(memStore) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "task_complete: Signal that the current task is finished successfully.")
	fmt.Fprintln(cmd.OutOrStdout(), "task_fatal_error: Signal that the current task cannot be completed.")
	return nil
}

func runHistoryRepair(cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	items, err := mechmodels.UnmarshalHistory(raw)
	if err != nil {
		return err
	}

	repaired := history.EnsureToolResultSequence(items)

	out, err := mechmodels.MarshalHistory(repaired)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "repaired %d -> %d items\n", len(items), len(repaired))
	return nil
}
