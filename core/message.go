package core

// Role identifies the conversational role of a message.
type Role string

const (
	// RoleSystem marks the system/context message prepended to every model call.
	RoleSystem Role = "system"
	// RoleUser marks messages authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by the model.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool execution results fed back to the model.
	RoleTool Role = "tool"
)

// FinishReason tags the outcome of one completed turn or model call.
type FinishReason string

const (
	// FinishStop indicates the model ended the turn normally.
	FinishStop FinishReason = "stop"
	// FinishManualStop indicates the turn was cancelled by the caller.
	FinishManualStop FinishReason = "manual_stop"
	// FinishToolCalls indicates the model requested tool execution.
	FinishToolCalls FinishReason = "tool_calls"
	// FinishContentFilter indicates the provider rejected the content.
	FinishContentFilter FinishReason = "content_filter"
	// FinishLength indicates the provider truncated output at its token cap.
	FinishLength FinishReason = "length"
)

// ToolCall is a function invocation request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON payload of arguments
}

// Message is the unit of conversation exchanged with model providers and
// committed to history. A message carries either text content or tool calls,
// never a meaningful mix: the engine treats any message with ToolCalls as a
// pure tool request.
type Message struct {
	Role         Role         `json:"role"`
	Content      string       `json:"content,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID   string       `json:"tool_call_id,omitempty"` // set on RoleTool results
	Name         string       `json:"name,omitempty"`         // tool name on RoleTool results
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// NewSystemMessage builds a RoleSystem message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a RoleUser message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds a RoleAssistant text message tagged with a finish reason.
func NewAssistantMessage(content string, reason FinishReason) Message {
	return Message{Role: RoleAssistant, Content: content, FinishReason: reason}
}

// NewToolCallMessage builds a RoleAssistant message carrying tool call requests.
func NewToolCallMessage(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls, FinishReason: FinishToolCalls}
}

// NewToolResultMessage builds a RoleTool result for a previously issued call.
func NewToolResultMessage(call ToolCall, result string) Message {
	return Message{Role: RoleTool, Content: result, ToolCallID: call.ID, Name: call.Name}
}

// IsToolCall reports whether the message is a pure tool call request.
func (m Message) IsToolCall() bool { return len(m.ToolCalls) > 0 }

// IsToolResult reports whether the message is a tool execution result.
func (m Message) IsToolResult() bool { return m.Role == RoleTool }

// TokenUsage captures token accounting reported by a model provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into the receiver.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Attachment describes one file supplied alongside user input. Bytes are
// handled by the transport / storage layers; the engine only carries the
// metadata through to the terminal event.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Path     string `json:"path,omitempty"` // storage path once processed
	Data     []byte `json:"data,omitempty"` // inline payload before processing
}
