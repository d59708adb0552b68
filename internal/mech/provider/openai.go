package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/mech/pkg/mechmodels"
)

// OpenAIProvider wraps sashabaranov/go-openai's streaming chat completion
// API, grounded on the teacher's OpenAI provider binding
// (internal/agent/providers/openai.go).
type OpenAIProvider struct {
	client *openai.Client
	models []string
}

// NewOpenAIProvider returns nil if apiKey is empty, so that callers can
// unconditionally pass it to provider.NewRegistry and have a missing key
// silently disable the provider rather than aborting startup.
func NewOpenAIProvider(apiKey string, models []string) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	if len(models) == 0 {
		models = []string{openai.GPT4o, openai.GPT4oMini}
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), models: models}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []string { return p.models }

func (p *OpenAIProvider) SupportsTools(model string) bool { return true }

func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan mechmodels.Event, error) {
	messages := toOpenAIMessages(req)

	request := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		request.Tools = toOpenAITools(req.Tools)
		if req.ToolChoice != "" && req.ToolChoice != "auto" {
			request.ToolChoice = req.ToolChoice
		}
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, err
	}

	events := make(chan mechmodels.Event, 8)
	go func() {
		defer close(events)
		defer stream.Close()

		messageID := ""
		order := 0
		var toolCalls []openai.ToolCall

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if len(toolCalls) > 0 {
					events <- mechmodels.Event{Type: mechmodels.EventToolStart, Model: req.Model, ToolCalls: toMechToolCalls(toolCalls)}
				}
				return
			}
			if err != nil {
				events <- mechmodels.Event{Type: mechmodels.EventError, Model: req.Model, Error: err.Error()}
				return
			}
			if messageID == "" {
				messageID = resp.ID
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				order++
				events <- mechmodels.Event{
					Type:      mechmodels.EventMessageDelta,
					Model:     req.Model,
					Content:   delta.Content,
					Order:     order,
					MessageID: messageID,
				}
			}
			for _, tc := range delta.ToolCalls {
				toolCalls = accumulateToolCall(toolCalls, tc)
			}
			if resp.Choices[0].FinishReason != "" {
				events <- mechmodels.Event{Type: mechmodels.EventMessageComplete, Model: req.Model, MessageID: messageID}
			}
		}
	}()

	return events, nil
}

func toOpenAIMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleDeveloper, Content: req.Instructions})
	}
	for _, item := range req.History {
		switch v := item.(type) {
		case mechmodels.Message:
			messages = append(messages, openai.ChatCompletionMessage{Role: string(v.Role), Content: v.Content})
		case mechmodels.FunctionCall:
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   v.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      v.Name,
						Arguments: v.Arguments,
					},
				}},
			})
		case mechmodels.FunctionCallOutput:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    v.Output,
				ToolCallID: v.CallID,
			})
		}
	}
	if req.Input != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Input})
	}
	return messages
}

func toOpenAITools(schemas [][]byte) []openai.Tool {
	tools := make([]openai.Tool, 0, len(schemas))
	for _, raw := range schemas {
		var decoded struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Parameters  json.RawMessage `json:"parameters"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			continue
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        decoded.Name,
				Description: decoded.Description,
				Parameters:  decoded.Parameters,
			},
		})
	}
	return tools
}

// accumulateToolCall merges a streamed tool-call delta into the running
// slice, matching go-openai's index-addressed incremental tool call chunks.
func accumulateToolCall(existing []openai.ToolCall, delta openai.ToolCall) []openai.ToolCall {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	for len(existing) <= idx {
		existing = append(existing, openai.ToolCall{Type: openai.ToolTypeFunction})
	}
	if delta.ID != "" {
		existing[idx].ID = delta.ID
	}
	existing[idx].Function.Name += delta.Function.Name
	existing[idx].Function.Arguments += delta.Function.Arguments
	return existing
}

func toMechToolCalls(calls []openai.ToolCall) []mechmodels.ToolCall {
	out := make([]mechmodels.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = mechmodels.ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments}
	}
	return out
}
