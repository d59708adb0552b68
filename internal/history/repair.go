package history

import (
	"encoding/json"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// EnsureToolResultSequence is the repair pass enforcing IH1: after it
// returns, every FunctionCall item is immediately followed by a
// FunctionCallOutput item carrying the same CallID. It is total — it
// always terminates and never returns an error — because a history that
// cannot be paired is repaired by synthesizing a placeholder output rather
// than by failing.
//
// Two phases, run to a fixed point, grounded on the teacher's
// repairTranscript two-phase design:
//
//  1. Orphan elimination: a FunctionCallOutput whose CallID was never
//     produced by a preceding FunctionCall (e.g. left over from a
//     cancelled prior turn) cannot legally appear in a provider-bound
//     history. It is rewritten in place into a plain user Message so the
//     content survives without violating pairing.
//  2. Pair completion: walk forward; any FunctionCall not immediately
//     followed by its matching output has one spliced forward from later
//     in the sequence, or a synthesized error output is inserted.
func EnsureToolResultSequence(items []mechmodels.HistoryItem) []mechmodels.HistoryItem {
	items = eliminateOrphanOutputs(items)
	for {
		repaired, changed := completePairs(items)
		items = repaired
		if !changed {
			return items
		}
	}
}

func eliminateOrphanOutputs(items []mechmodels.HistoryItem) []mechmodels.HistoryItem {
	callIDs := make(map[string]bool)
	for _, item := range items {
		if fc, ok := item.(mechmodels.FunctionCall); ok {
			callIDs[fc.CallID] = true
		}
	}

	out := make([]mechmodels.HistoryItem, len(items))
	for i, item := range items {
		output, ok := item.(mechmodels.FunctionCallOutput)
		if ok && !callIDs[output.CallID] {
			out[i] = mechmodels.Message{
				Role:    mechmodels.RoleUser,
				Content: "Tool result (" + output.Name + "): " + output.Output,
			}
			continue
		}
		out[i] = item
	}
	return out
}

// completePairs performs one forward scan, splicing or synthesizing at most
// the first violation it finds. It reports whether it changed anything so
// the caller can iterate to a fixed point.
func completePairs(items []mechmodels.HistoryItem) ([]mechmodels.HistoryItem, bool) {
	for i, item := range items {
		call, ok := item.(mechmodels.FunctionCall)
		if !ok {
			continue
		}
		if i+1 < len(items) {
			if out, ok := items[i+1].(mechmodels.FunctionCallOutput); ok && out.CallID == call.CallID {
				continue
			}
		}

		// Scan forward (past i+1) for a matching output to splice back.
		for j := i + 2; j < len(items); j++ {
			out, ok := items[j].(mechmodels.FunctionCallOutput)
			if !ok || out.CallID != call.CallID {
				continue
			}
			spliced := make([]mechmodels.HistoryItem, 0, len(items))
			spliced = append(spliced, items[:i+1]...)
			spliced = append(spliced, out)
			spliced = append(spliced, items[i+1:j]...)
			spliced = append(spliced, items[j+1:]...)
			return spliced, true
		}

		// No matching output exists anywhere: synthesize one.
		synthetic := synthesizeErrorOutput(call)
		out := make([]mechmodels.HistoryItem, 0, len(items)+1)
		out = append(out, items[:i+1]...)
		out = append(out, synthetic)
		out = append(out, items[i+1:]...)
		return out, true
	}
	return items, false
}

func synthesizeErrorOutput(call mechmodels.FunctionCall) mechmodels.FunctionCallOutput {
	raw, _ := json.Marshal(map[string]string{"error": "Tool call did not complete or output was missing."})
	return mechmodels.FunctionCallOutput{
		CallID: call.CallID,
		Name:   call.Name,
		Output: string(raw),
		Status: "incomplete",
	}
}
