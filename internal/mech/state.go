// Package mech implements the MECH Driver (spec 4.E): the outer loop that
// ties the history store, tool-aware runner, and metacognition agent
// together into one run, grounded on the teacher's internal/agent/loop.go
// AgenticLoop and internal/agents/heartbeat/runner.go's interruptible sleep.
package mech

import (
	"sync"
	"time"
)

// allowedMetaFrequencies and allowedThoughtDelays are the discrete value
// sets spec 4.E's MECHState restricts tuning to; metacognition's setters
// clamp to the nearest member rather than rejecting out-of-range input.
var (
	allowedMetaFrequencies = []int{5, 10, 20, 40}
	allowedThoughtDelays   = []int{0, 2, 4, 8, 16, 32, 64, 128}
)

// State is MECHState: the per-run mutable tuning knobs shared by the
// streaming runner's model selection and the metacognition agent's tools.
// It is scoped to one Driver.Run call rather than a package-level global,
// per the Open Question resolution recorded in the grounding ledger — two
// concurrent runs on the same process must not share scores or a delay.
type State struct {
	mu sync.Mutex

	llmRequestCount int
	metaFrequency   int
	disabledModels  map[string]bool
	modelScores     map[string]int
	lastModelUsed   string

	thoughtDelay     time.Duration
	delayInterrupted bool

	runStartTime time.Time
	costBaseline float64
}

// newState resets MECHState to the defaults spec 4.E step 1 prescribes.
func newState(costBaseline float64) *State {
	return &State{
		metaFrequency:  5,
		disabledModels: make(map[string]bool),
		modelScores:    make(map[string]int),
		runStartTime:   time.Now(),
		costBaseline:   costBaseline,
	}
}

// Score implements runner.ScoreSource: unknown models default to 50.
func (s *State) Score(modelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.modelScores[modelID]; ok {
		return v
	}
	return 50
}

// IsDisabled implements runner.ScoreSource.
func (s *State) IsDisabled(modelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabledModels[modelID]
}

func (s *State) noteModelUsed(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastModelUsed = modelID
}

func (s *State) previousModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastModelUsed
}

func (s *State) incrementRequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llmRequestCount++
	return s.llmRequestCount
}

func (s *State) shouldRunMetacognition(count int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return count%s.metaFrequency == 0
}

// SetMetaFrequency clamps freq to the nearest allowed cadence.
func (s *State) SetMetaFrequency(freq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaFrequency = nearestInt(freq, allowedMetaFrequencies)
}

// SetThoughtDelay clamps seconds to the nearest allowed delay.
func (s *State) SetThoughtDelay(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thoughtDelay = time.Duration(nearestInt(seconds, allowedThoughtDelays)) * time.Second
}

func (s *State) currentThoughtDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thoughtDelay
}

// SetModelScore sets a 0-100 weight used by the runner's weighted pick.
func (s *State) SetModelScore(modelID string, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	s.modelScores[modelID] = score
}

// DisableModel toggles a model out of (or back into) the weighted draw.
func (s *State) DisableModel(modelID string, disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if disabled {
		s.disabledModels[modelID] = true
	} else {
		delete(s.disabledModels, modelID)
	}
}

// InterruptDelay sets delayInterrupted, aborting the driver's current
// thought-delay sleep on its next 100ms check. Callers set this when a new
// user message or priority system event arrives.
func (s *State) InterruptDelay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayInterrupted = true
}

func (s *State) consumeInterrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.delayInterrupted
	s.delayInterrupted = false
	return v
}

func (s *State) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.runStartTime)
}

func nearestInt(v int, allowed []int) int {
	best := allowed[0]
	bestDiff := abs(v - best)
	for _, a := range allowed[1:] {
		if d := abs(v - a); d < bestDiff {
			best, bestDiff = a, d
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
