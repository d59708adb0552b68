package toolsys

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaIncludesRequiredAndOptionalParams(t *testing.T) {
	d := &Descriptor{
		Name:        "send_message",
		Description: "Send a message to the user.",
		Params: []Param{
			{ExternalName: "text", Kind: ParamString, Description: "body", Required: true},
			{ExternalName: "priority", Kind: ParamEnum, Enum: []string{"low", "high"}, Default: "low"},
			{ExternalName: "agent_id", Kind: ParamString, Inject: true},
		},
	}

	var schema map[string]any
	require.NoError(t, json.Unmarshal(d.Schema(), &schema))

	assert.Equal(t, "send_message", schema["name"])
	parameters := schema["parameters"].(map[string]any)
	properties := parameters["properties"].(map[string]any)

	_, hasText := properties["text"]
	_, hasPriority := properties["priority"]
	_, hasAgentID := properties["agent_id"]
	assert.True(t, hasText)
	assert.True(t, hasPriority)
	assert.False(t, hasAgentID, "injected params must not appear in the model-facing schema")

	required := toStringSlice(parameters["required"])
	assert.Equal(t, []string{"text"}, required)
}

func TestValidateRejectsNothingForWellFormedDescriptor(t *testing.T) {
	d := &Descriptor{
		Name: "recall_memories",
		Params: []Param{
			{ExternalName: "query", Kind: ParamString, Required: true},
			{ExternalName: "limit", Kind: ParamNumber},
		},
	}
	assert.NoError(t, d.Validate())
}

func toStringSlice(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = r.(string)
	}
	return out
}
