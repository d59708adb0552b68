// Package history implements the append-only conversation log, its
// per-agent pending sub-threads, and the call/result pairing repair pass
// that enforces invariant IH1, grounded on the teacher's
// internal/agent/transcript_repair.go.
package history

import (
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// Store is the process-wide ConversationHistory: an ordered main log plus
// per-agent pending threads that are merged in at the top of each MECH
// iteration. A mutex serializes access — Go is natively multi-threaded, so
// the spec's "single-threaded cooperative" ordering guarantee is achieved
// here by lock discipline rather than an actual single OS thread.
type Store struct {
	mu      sync.Mutex
	items   []mechmodels.HistoryItem
	pending map[string][]mechmodels.HistoryItem
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{pending: make(map[string][]mechmodels.HistoryItem)}
}

// Append pushes a single item onto the main log.
func (s *Store) Append(item mechmodels.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
}

// AppendThread buffers items on a pending per-agent thread keyed by
// agentID, to be merged into the main log by the next DrainThreads call.
func (s *Store) AppendThread(agentID string, items ...mechmodels.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[agentID] = append(s.pending[agentID], items...)
}

// DrainThreads moves every pending thread into the main log in arrival
// order and clears the pending map. Each agent's full sub-conversation is
// inserted atomically under the lock, so partial threads never interleave.
func (s *Store) DrainThreads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return
	}
	for _, items := range s.pending {
		s.items = append(s.items, items...)
	}
	s.pending = make(map[string][]mechmodels.HistoryItem)
}

// Snapshot returns a copy of the main log, safe for the caller to range
// over without holding the Store's lock.
func (s *Store) Snapshot() []mechmodels.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mechmodels.HistoryItem, len(s.items))
	copy(out, s.items)
	return out
}

// Repair runs EnsureToolResultSequence over the current main log in place.
func (s *Store) Repair() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = EnsureToolResultSequence(s.items)
}

// Describe renders the last window items compactly for prompt assembly,
// grounded on the condensed-history rendering used when building a
// metacognition or system-status prompt.
func (s *Store) Describe(window int) string {
	snap := s.Snapshot()
	if window > 0 && window < len(snap) {
		snap = snap[len(snap)-window:]
	}
	var b strings.Builder
	for _, item := range snap {
		switch v := item.(type) {
		case mechmodels.Message:
			fmt.Fprintf(&b, "[%s] %s\n", v.Role, truncate(v.Content, 240))
		case mechmodels.Thinking:
			fmt.Fprintf(&b, "[thinking] %s\n", truncate(v.Content, 240))
		case mechmodels.FunctionCall:
			fmt.Fprintf(&b, "[call:%s] %s(%s)\n", v.CallID, v.Name, truncate(v.Arguments, 160))
		case mechmodels.FunctionCallOutput:
			fmt.Fprintf(&b, "[result:%s] %s -> %s\n", v.CallID, v.Name, truncate(v.Output, 160))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
