package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// Summarizer handles model-generated titles and summaries for runs.
type Summarizer struct {
	client engine.ModelClient
	model  string
}

// NewSummarizer creates a new run summarizer.
func NewSummarizer(client engine.ModelClient, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

// GenerateTitle generates a short 3-5 word title for the run.
func (s *Summarizer) GenerateTitle(ctx context.Context, history []engine.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "New Run", nil
	}
	// The first few messages carry the intent.
	limit := min(len(history), 10)
	title, err := s.complete(ctx,
		"Generate a short, concise title (3-5 words) for this coding session based on the user's intent and work done. Do not use quotes or punctuation.",
		fmt.Sprintf("History:\n%s\n\nGenerate Title:", render(history[:limit])),
		20)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return title, nil
}

// GenerateSummary condenses the run for later review.
func (s *Summarizer) GenerateSummary(ctx context.Context, history []engine.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	summary, err := s.complete(ctx,
		"Summarize the following coding session. Focus on decisions made, files modified, unresolved errors and next steps. Be concise.",
		fmt.Sprintf("Summarize this session:\n\n%s", render(history)),
		500)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return summary, nil
}

func (s *Summarizer) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := engine.ChatRequest{
		Model: s.model,
		Messages: []engine.ChatMessage{
			{Role: engine.RoleSystem, Content: system},
			{Role: engine.RoleUser, Content: user},
		},
		MaxOutputTokens: maxTokens,
		Temperature:     0.2,
	}
	var b strings.Builder
	err := s.client.ChatStream(ctx, req, func(c engine.Chunk) error {
		switch c.Kind {
		case engine.ChunkContent:
			b.WriteString(c.Content)
		case engine.ChunkError:
			return c.Err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// render flattens a conversation into plain text, eliding long tool output.
func render(history []engine.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case engine.RoleSystem:
			continue
		case engine.RoleTool:
			content := m.Content
			if len(content) > 300 {
				content = content[:300] + "...(truncated)"
			}
			fmt.Fprintf(&b, "[tool %s]: %s\n", m.ToolName, content)
		default:
			fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
			for _, c := range m.ToolCalls {
				fmt.Fprintf(&b, "  -> %s\n", c.Name)
			}
		}
	}
	return b.String()
}
