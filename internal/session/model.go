// Package session keeps an audit trail of agent runs on disk.
package session

import (
	"time"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// Run is one persisted agent run.
type Run struct {
	ID        string    `json:"id"`
	RepoPath  string    `json:"repo_path"`
	RepoHash  string    `json:"repo_hash"` // Used for directory scoping
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Outcome   Outcome   `json:"outcome"`
	ToolCalls []Call    `json:"tool_calls"`
	History   []Message `json:"history"`
	Summary   string    `json:"summary,omitempty"`
}

// Outcome mirrors engine.AgentResult in a serializable form.
type Outcome struct {
	Success          bool     `json:"success"`
	StopReason       string   `json:"stop_reason"`
	Iterations       int      `json:"iterations"`
	FinalResponse    string   `json:"final_response,omitempty"`
	Error            string   `json:"error,omitempty"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	ModifiedFiles    []string `json:"modified_files,omitempty"`
}

// Call is one executed tool call.
type Call struct {
	Iteration  int            `json:"iteration"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// Message is a conversation entry.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCalls  []Call `json:"tool_calls,omitempty"`
}

// RunMeta is a lightweight representation for listing.
type RunMeta struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	StopReason string    `json:"stop_reason"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Summary    string    `json:"summary,omitempty"`
}

// NewRun converts a finished run into its persisted form.
func NewRun(repoPath, prompt string, res engine.AgentResult, modified []string) *Run {
	now := time.Now().UTC()
	r := &Run{
		RepoPath:  repoPath,
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
		Outcome: Outcome{
			Success:          res.Success,
			StopReason:       string(res.StopReason),
			Iterations:       res.Iterations,
			FinalResponse:    res.FinalResponse,
			PromptTokens:     res.Usage.Prompt,
			CompletionTokens: res.Usage.Completion,
			ModifiedFiles:    modified,
		},
		ToolCalls: make([]Call, 0, len(res.ToolCalls)),
		History:   make([]Message, 0, len(res.History)),
	}
	if res.Err != nil {
		r.Outcome.Error = res.Err.Error()
	}
	for _, rec := range res.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, Call{
			Iteration:  rec.Iteration,
			ID:         rec.Call.ID,
			Name:       rec.Call.Name,
			Args:       rec.Call.Args,
			Success:    rec.Result.Success,
			Error:      rec.Result.Error,
			DurationMS: rec.Duration.Milliseconds(),
		})
	}
	for _, m := range res.History {
		if m.Role == engine.RoleSystem {
			continue
		}
		msg := Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, ToolName: m.ToolName}
		for _, c := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, Call{ID: c.ID, Name: c.Name, Args: c.Args})
		}
		r.History = append(r.History, msg)
	}
	return r
}

// Transcript rebuilds the engine conversation, for summarizing.
func (r *Run) Transcript() []engine.ChatMessage {
	out := make([]engine.ChatMessage, 0, len(r.History))
	for _, m := range r.History {
		msg := engine.ChatMessage{Role: engine.MessageRole(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, ToolName: m.ToolName}
		for _, c := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, engine.ToolCall{ID: c.ID, Name: c.Name, Args: c.Args})
		}
		out = append(out, msg)
	}
	return out
}
