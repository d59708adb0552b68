// Package runner implements the Streaming Runner (spec 4.C) and the
// Tool-Aware Runner (spec 4.D): single-turn provider streaming with
// inactivity timeout and fallback, wrapped in a recursive tool-call
// resolution loop. Grounded on the teacher's internal/agent/failover.go
// (fallback/circuit-breaker policy) and internal/agent/loop.go
// (AgenticLoop's phase state machine).
package runner

import (
	"math/rand"
	"strings"

	"github.com/haasonsaas/mech/internal/mechagent"
)

// ModelSpec is one entry in a model-class list: an id plus the optional
// rate-limit fallback the spec's 429 short-circuit uses.
type ModelSpec struct {
	ID                string
	RateLimitFallback string
}

// ClassTable maps a model class name (e.g. "monologue", "standard") to its
// ordered candidate list.
type ClassTable map[string][]ModelSpec

// ScoreSource exposes the mutable parts of MECHState the model-selection
// algorithm needs: per-model weighted scores and the disabled set. An
// unknown model defaults to score 50, per spec 4.C step 1.
type ScoreSource interface {
	Score(modelID string) int
	IsDisabled(modelID string) bool
}

// SelectInitial picks the model for a fresh turn: agent.Model if pinned,
// otherwise a score-weighted random draw from the agent's model class,
// excluding disabled models.
func SelectInitial(agent *mechagent.Agent, classes ClassTable, scores ScoreSource, rng *rand.Rand) string {
	if m := agent.EffectiveModel(); m != nil && *m != "" {
		return *m
	}
	candidates := classes[agent.ModelClass]
	return weightedPick(candidates, scores, nil, rng)
}

// NextFallback implements the fallback policy of spec 4.C:
//  1. If lastErr looks like a 429 and the last-attempted model declares an
//     untried RateLimitFallback, use it directly.
//  2. Otherwise walk the agent's model-class list, then the universal
//     "standard" class, skipping models already tried this run.
//  3. Return "" when no candidate remains.
func NextFallback(agent *mechagent.Agent, classes ClassTable, lastModel, lastErr string, tried map[string]bool) string {
	if isRateLimitError(lastErr) {
		if spec, ok := findSpec(classes[agent.ModelClass], lastModel); ok && spec.RateLimitFallback != "" && !tried[spec.RateLimitFallback] {
			return spec.RateLimitFallback
		}
		if spec, ok := findSpec(classes["standard"], lastModel); ok && spec.RateLimitFallback != "" && !tried[spec.RateLimitFallback] {
			return spec.RateLimitFallback
		}
	}

	for _, spec := range classes[agent.ModelClass] {
		if !tried[spec.ID] {
			return spec.ID
		}
	}
	for _, spec := range classes["standard"] {
		if !tried[spec.ID] {
			return spec.ID
		}
	}
	return ""
}

func isRateLimitError(errText string) bool {
	return strings.Contains(errText, "429") || strings.Contains(errText, "Too Many Requests")
}

func findSpec(list []ModelSpec, id string) (ModelSpec, bool) {
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	return ModelSpec{}, false
}

func weightedPick(candidates []ModelSpec, scores ScoreSource, exclude map[string]bool, rng *rand.Rand) string {
	type weighted struct {
		id     string
		weight int
	}
	var pool []weighted
	total := 0
	for _, c := range candidates {
		if scores != nil && scores.IsDisabled(c.ID) {
			continue
		}
		if exclude != nil && exclude[c.ID] {
			continue
		}
		w := 50
		if scores != nil {
			w = scores.Score(c.ID)
		}
		if w <= 0 {
			w = 1
		}
		pool = append(pool, weighted{c.ID, w})
		total += w
	}
	if len(pool) == 0 {
		return ""
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	r := rng.Intn(total)
	for _, w := range pool {
		if r < w.weight {
			return w.id
		}
		r -= w.weight
	}
	return pool[len(pool)-1].id
}
