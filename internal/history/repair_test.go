package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

func callOutputPairs(t *testing.T, items []mechmodels.HistoryItem) {
	t.Helper()
	for i, item := range items {
		call, ok := item.(mechmodels.FunctionCall)
		if !ok {
			continue
		}
		require.Lessf(t, i+1, len(items), "FunctionCall %s has no successor", call.CallID)
		out, ok := items[i+1].(mechmodels.FunctionCallOutput)
		require.Truef(t, ok, "item after FunctionCall %s is not a FunctionCallOutput", call.CallID)
		assert.Equal(t, call.CallID, out.CallID, "IH1: call/result call_id mismatch")
	}
}

func TestEnsureToolResultSequence_AlreadyPaired(t *testing.T) {
	// Identity on well-formed input.
	in := []mechmodels.HistoryItem{
		mechmodels.Message{Role: mechmodels.RoleUser, Content: "hi"},
		mechmodels.FunctionCall{CallID: "1", Name: "calc", Arguments: `{"a":1}`},
		mechmodels.FunctionCallOutput{CallID: "1", Name: "calc", Output: "2"},
	}
	out := EnsureToolResultSequence(in)
	assert.Equal(t, in, out)
}

func TestEnsureToolResultSequence_OrphanOutputBecomesMessage(t *testing.T) {
	// Scenario 4 from the spec.
	in := []mechmodels.HistoryItem{
		mechmodels.Message{Role: mechmodels.RoleUser, Content: "hello"},
		mechmodels.FunctionCallOutput{CallID: "Z", Name: "t", Output: "x"},
	}
	out := EnsureToolResultSequence(in)
	require.Len(t, out, 2)
	msg, ok := out[1].(mechmodels.Message)
	require.True(t, ok, "orphan output must become a Message")
	assert.Equal(t, mechmodels.RoleUser, msg.Role)
	assert.Equal(t, "Tool result (t): x", msg.Content)
	callOutputPairs(t, out) // IH1 trivially holds: no FunctionCalls remain.
}

func TestEnsureToolResultSequence_SynthesizesMissingOutput(t *testing.T) {
	in := []mechmodels.HistoryItem{
		mechmodels.FunctionCall{CallID: "a", Name: "search", Arguments: "{}"},
		mechmodels.Message{Role: mechmodels.RoleAssistant, Content: "unrelated"},
	}
	out := EnsureToolResultSequence(in)
	callOutputPairs(t, out)
	require.Len(t, out, 3)
	synthesized, ok := out[1].(mechmodels.FunctionCallOutput)
	require.True(t, ok)
	assert.Equal(t, "incomplete", synthesized.Status)
	assert.Contains(t, synthesized.Output, "did not complete")
}

func TestEnsureToolResultSequence_SplicesOutOfOrderOutput(t *testing.T) {
	in := []mechmodels.HistoryItem{
		mechmodels.FunctionCall{CallID: "a", Name: "one", Arguments: "{}"},
		mechmodels.FunctionCall{CallID: "b", Name: "two", Arguments: "{}"},
		mechmodels.FunctionCallOutput{CallID: "a", Name: "one", Output: "1"},
		mechmodels.FunctionCallOutput{CallID: "b", Name: "two", Output: "2"},
	}
	out := EnsureToolResultSequence(in)
	callOutputPairs(t, out)
	require.Len(t, out, 4)
}

func TestEnsureToolResultSequence_NoOrphansSurvive(t *testing.T) {
	// IH2: no FunctionCallOutput whose call_id lacks a preceding FunctionCall.
	in := []mechmodels.HistoryItem{
		mechmodels.FunctionCallOutput{CallID: "dangling", Name: "x", Output: "y"},
		mechmodels.FunctionCall{CallID: "a", Name: "calc", Arguments: "{}"},
		mechmodels.FunctionCallOutput{CallID: "a", Name: "calc", Output: "4"},
	}
	out := EnsureToolResultSequence(in)
	callIDs := map[string]bool{}
	for _, item := range out {
		if fc, ok := item.(mechmodels.FunctionCall); ok {
			callIDs[fc.CallID] = true
		}
	}
	for _, item := range out {
		if o, ok := item.(mechmodels.FunctionCallOutput); ok {
			assert.Truef(t, callIDs[o.CallID], "orphan output %s survived repair", o.CallID)
		}
	}
}

func TestEnsureToolResultSequence_Idempotent(t *testing.T) {
	in := []mechmodels.HistoryItem{
		mechmodels.FunctionCall{CallID: "a", Name: "one", Arguments: "{}"},
		mechmodels.FunctionCallOutput{CallID: "stray", Name: "x", Output: "y"},
		mechmodels.FunctionCall{CallID: "b", Name: "two", Arguments: "{}"},
	}
	once := EnsureToolResultSequence(in)
	twice := EnsureToolResultSequence(once)
	assert.Equal(t, once, twice)
}

func TestEnsureToolResultSequence_EmptyInput(t *testing.T) {
	out := EnsureToolResultSequence(nil)
	assert.Empty(t, out)
}

func TestStore_DrainThreadsMergesAtomically(t *testing.T) {
	s := NewStore()
	s.Append(mechmodels.Message{Role: mechmodels.RoleUser, Content: "start"})
	s.AppendThread("agent-1", mechmodels.FunctionCall{CallID: "c1", Name: "t", Arguments: "{}"})
	s.AppendThread("agent-1", mechmodels.FunctionCallOutput{CallID: "c1", Name: "t", Output: "ok"})

	snapBefore := s.Snapshot()
	require.Len(t, snapBefore, 1)

	s.DrainThreads()
	snapAfter := s.Snapshot()
	require.Len(t, snapAfter, 3)

	s.DrainThreads()
	assert.Len(t, s.Snapshot(), 3, "draining twice must not duplicate")
}

func TestStore_Describe_TruncatesToWindow(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Append(mechmodels.Message{Role: mechmodels.RoleUser, Content: "msg"})
	}
	out := s.Describe(2)
	assert.Equal(t, 2, len(splitLines(out)))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
