package mechmodels

// EventType discriminates the variants of Event.
type EventType string

const (
	EventAgentStart      EventType = "agent_start"
	EventAgentUpdated    EventType = "agent_updated"
	EventMessageDelta    EventType = "message_delta"
	EventMessageComplete EventType = "message_complete"
	EventToolStart       EventType = "tool_start"
	EventToolDone        EventType = "tool_done"
	EventError           EventType = "error"
	EventProcessUpdated  EventType = "process_updated"
	EventProcessDone     EventType = "process_done"
	EventProcessFailed   EventType = "process_failed"
	EventSystemStatus    EventType = "system_status"

	// EventTaskComplete / EventTaskFatalError terminate a tool-aware run,
	// raised when the task_complete or task_fatal_error tool is invoked
	// (mecherr.TaskCompleteSignal / TaskFatalErrorSignal crossing from the
	// dispatcher into the runner).
	EventTaskComplete   EventType = "task_complete"
	EventTaskFatalError EventType = "task_fatal_error"
)

// Event is the single tagged-struct representation of every StreamingEvent
// variant in the spec. A Type discriminator selects which of the optional
// fields below are populated; this mirrors the teacher's RuntimeEvent/
// ToolEvent pattern of one struct with a Stage/Type tag rather than Go's
// more cumbersome sum-type encodings.
type Event struct {
	Type EventType `json:"type"`

	// Model is the provider model that produced this event, stamped by the
	// streaming runner so callers can tell which attempt an event belongs to.
	Model string `json:"model,omitempty"`

	// message_delta / message_complete fields.
	Content           string `json:"content,omitempty"`
	Order             int    `json:"order,omitempty"`
	MessageID         string `json:"message_id,omitempty"`
	ThinkingContent   string `json:"thinking_content,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`

	// tool_start / tool_done fields.
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	// error field.
	Error string `json:"error,omitempty"`

	// system_status / agent_status free-form payload.
	Status map[string]any `json:"status,omitempty"`
}
