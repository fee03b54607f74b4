package engine

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message we pass around.
type ChatMessage struct {
	Role       MessageRole
	Content    string
	ToolCallID string     // set on tool messages: the call this result answers
	ToolName   string     // set on tool messages
	ToolCalls  []ToolCall // set on assistant messages that requested tools
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool messages must carry a ToolCallID")
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// Add accumulates another usage report.
func (u *Usage) Add(o Usage) {
	u.Prompt += o.Prompt
	u.Completion += o.Completion
	u.Total += o.Total
}

// ToolCall represents a function/tool the assistant requested. It is not
// modified after the decoder finalizes it.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
	// DecodeError is set when the streamed arguments could not be parsed.
	// Args is then empty and the call fails validation automatically.
	DecodeError *DecodeError
}

// ToolResult is what a tool hands back to the loop.
type ToolResult struct {
	Success  bool
	Title    string
	Output   string
	Error    string
	Metadata map[string]any
}

// Succeeded builds a successful result.
func Succeeded(title, output string) ToolResult {
	return ToolResult{Success: true, Title: title, Output: output}
}

// Failed builds a failing result.
func Failed(title, errMsg string) ToolResult {
	return ToolResult{Success: false, Title: title, Error: errMsg}
}

// SucceededJSON builds a successful result whose output is v encoded as JSON.
func SucceededJSON(title string, v any) (ToolResult, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return ToolResult{}, fmt.Errorf("encode %s result: %w", title, err)
	}
	return Succeeded(title, string(out)), nil
}

// Feedback renders the result as the content of a tool message.
func (r ToolResult) Feedback() string {
	if r.Success {
		return r.Output
	}
	if r.Output == "" {
		return "ERROR: " + r.Error
	}
	return "ERROR: " + r.Error + "\n" + r.Output
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// ChatRequest is one streaming model call.
type ChatRequest struct {
	Model           string
	Messages        []ChatMessage
	Tools           []ToolSchema
	MaxOutputTokens int
	Temperature     float32
}

// ModelClient streams a model turn as ordered chunks. Implementations must
// deliver chunks in arrival order and finish with exactly one done chunk on
// success. A non-nil return from onChunk stops the stream.
type ModelClient interface {
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(Chunk) error) error
}

// StopReason classifies why a run ended.
type StopReason string

const (
	StopCompleted         StopReason = "completed"
	StopError             StopReason = "error"
	StopAborted           StopReason = "aborted"
	StopMaxIterations     StopReason = "max_iterations"
	StopConsecutiveErrors StopReason = "consecutive_errors"
)

// ToolCallRecord is one executed call kept for the run history.
type ToolCallRecord struct {
	Iteration int
	Call      ToolCall
	Result    ToolResult
	Duration  time.Duration
}

// AgentResult is returned from every terminal path of a run.
type AgentResult struct {
	Success       bool
	FinalResponse string
	Iterations    int
	ToolCalls     []ToolCallRecord
	StopReason    StopReason
	Err           error
	Usage         Usage
	// History is the conversation including everything appended by the run.
	History []ChatMessage
}
