// Package reasoning holds tools that shape the model's work without touching
// the repository: recording reasoning and proposing plans.
package reasoning

import (
	"context"
	"log/slog"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

// NewThinkTool records the model's reasoning in the log.
func NewThinkTool(logger *slog.Logger) engine.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return engine.Tool{
		Name: "think",
		Description: `Record your reasoning. Use it after understanding the task to state your approach, before non-trivial changes, and when choosing between options. Mention files and functions by name.`,
		SchemaJSON:  `{"type":"object","properties":{"reasoning":{"type":"string","minLength":1,"description":"What you understand, what you will do next and why"}},"required":["reasoning"]}`,
		Fn: func(ctx context.Context, args map[string]any) (engine.ToolResult, error) {
			reasoning, _ := args["reasoning"].(string)
			logger.InfoContext(ctx, "agent reasoning", "reasoning", reasoning)
			return engine.Succeeded("think", `{"status":"noted"}`), nil
		},
		Metadata: engine.ToolMetadata{Category: "meta", Tags: []string{"reasoning"}},
		PlanMode: true,
	}
}
