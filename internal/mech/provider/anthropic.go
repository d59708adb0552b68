package provider

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// AnthropicProvider wraps anthropic-sdk-go, grounded on the teacher's
// Anthropic provider binding (internal/agent/providers/anthropic.go). It
// issues a non-streaming Messages.New call and replays the completed
// message as a short event sequence, since the spec places no requirement
// on token-by-token delta granularity for correctness — only that
// message_complete and tool_start eventually arrive.
type AnthropicProvider struct {
	client anthropic.Client
	models []string
}

// NewAnthropicProvider returns nil if apiKey is empty, disabling the
// provider rather than aborting startup, per the spec's missing-key policy.
func NewAnthropicProvider(apiKey string, models []string) *AnthropicProvider {
	if apiKey == "" {
		return nil
	}
	if len(models) == 0 {
		models = []string{
			anthropic.ModelClaudeOpus4_1,
			anthropic.ModelClaudeSonnet4_5,
		}
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		models: models,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []string { return p.models }

func (p *AnthropicProvider) SupportsTools(model string) bool { return true }

func (p *AnthropicProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan mechmodels.Event, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: 4096,
		Messages:  toAnthropicMessages(req),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	events := make(chan mechmodels.Event, 4)
	go func() {
		defer close(events)

		var text string
		var toolCalls []mechmodels.ToolCall
		for _, block := range message.Content {
			switch block.Type {
			case "text":
				text += block.Text
			case "tool_use":
				args, _ := json.Marshal(block.Input)
				toolCalls = append(toolCalls, mechmodels.ToolCall{ID: block.ID, Name: block.Name, Arguments: string(args)})
			}
		}

		if text != "" {
			events <- mechmodels.Event{Type: mechmodels.EventMessageDelta, Model: req.Model, Content: text, Order: 1, MessageID: message.ID}
			events <- mechmodels.Event{Type: mechmodels.EventMessageComplete, Model: req.Model, Content: text, MessageID: message.ID}
		}
		if len(toolCalls) > 0 {
			events <- mechmodels.Event{Type: mechmodels.EventToolStart, Model: req.Model, ToolCalls: toolCalls}
		}
	}()

	return events, nil
}

func toAnthropicMessages(req CompletionRequest) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, item := range req.History {
		switch v := item.(type) {
		case mechmodels.Message:
			if v.Role == mechmodels.RoleAssistant {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(v.Content)))
			} else {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(v.Content)))
			}
		case mechmodels.FunctionCall:
			var input any
			_ = json.Unmarshal([]byte(v.Arguments), &input)
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(v.CallID, input, v.Name)))
		case mechmodels.FunctionCallOutput:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(v.CallID, v.Output, false)))
		}
	}
	if req.Input != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)))
	}
	return messages
}

func toAnthropicTools(schemas [][]byte) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, raw := range schemas {
		var decoded struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Parameters  struct {
				Type       string         `json:"type"`
				Properties map[string]any `json:"properties"`
				Required   []string       `json:"required"`
			} `json:"parameters"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			continue
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        decoded.Name,
				Description: anthropic.String(decoded.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: decoded.Parameters.Properties,
				},
			},
		})
	}
	return tools
}
