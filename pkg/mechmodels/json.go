package mechmodels

import "encoding/json"

// historyEnvelope is the on-the-wire shape of a HistoryItem: a kind
// discriminator plus the union of every variant's fields, mirroring how
// the provider SDKs themselves encode tagged history entries.
type historyEnvelope struct {
	Kind      ItemKind `json:"kind"`
	Role      Role     `json:"role,omitempty"`
	Content   string   `json:"content,omitempty"`
	Status    string   `json:"status,omitempty"`
	Signature string   `json:"signature,omitempty"`
	CallID    string   `json:"call_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Arguments string   `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// MarshalHistory encodes a history slice as a JSON array of tagged
// envelopes, suitable for file persistence or the CLI's history commands.
func MarshalHistory(items []HistoryItem) ([]byte, error) {
	envelopes := make([]historyEnvelope, len(items))
	for i, item := range items {
		envelopes[i] = toEnvelope(item)
	}
	return json.MarshalIndent(envelopes, "", "  ")
}

// UnmarshalHistory decodes a JSON array of tagged envelopes back into
// concrete HistoryItem variants.
func UnmarshalHistory(raw []byte) ([]HistoryItem, error) {
	var envelopes []historyEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(envelopes))
	for _, e := range envelopes {
		if item := fromEnvelope(e); item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func toEnvelope(item HistoryItem) historyEnvelope {
	switch v := item.(type) {
	case Message:
		return historyEnvelope{Kind: KindMessage, Role: v.Role, Content: v.Content, Status: v.Status}
	case Thinking:
		return historyEnvelope{Kind: KindThinking, Content: v.Content, Signature: v.Signature, Status: v.Status}
	case FunctionCall:
		return historyEnvelope{Kind: KindFunctionCall, CallID: v.CallID, Name: v.Name, Arguments: v.Arguments}
	case FunctionCallOutput:
		return historyEnvelope{Kind: KindFunctionCallOutput, CallID: v.CallID, Name: v.Name, Output: v.Output, Status: v.Status}
	default:
		return historyEnvelope{}
	}
}

func fromEnvelope(e historyEnvelope) HistoryItem {
	switch e.Kind {
	case KindMessage:
		return Message{Role: e.Role, Content: e.Content, Status: e.Status}
	case KindThinking:
		return Thinking{Content: e.Content, Signature: e.Signature, Status: e.Status}
	case KindFunctionCall:
		return FunctionCall{CallID: e.CallID, Name: e.Name, Arguments: e.Arguments}
	case KindFunctionCallOutput:
		return FunctionCallOutput{CallID: e.CallID, Name: e.Name, Output: e.Output, Status: e.Status}
	default:
		return nil
	}
}
