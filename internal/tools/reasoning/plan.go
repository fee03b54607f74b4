package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

const createPlanDescription = `Propose an implementation plan for the user to approve. Required before editing more than a couple of files.

Give a short title, a 1-2 sentence summary, 3-8 concrete steps naming files and functions, and every file you intend to create, edit or delete. The plan starts pending; file edits beyond the first few stay blocked until the user approves it. After calling this, stop and wait.`

type planResult struct {
	ID     string       `json:"id"`
	Status plans.Status `json:"status"`
	Files  []string     `json:"files"`
}

func stringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func createPlan(ctx context.Context, reg plans.Registry, args map[string]any) (engine.ToolResult, error) {
	p := plans.Plan{Steps: stringList(args["steps"]), Files: stringList(args["files"])}
	p.Title, _ = args["title"].(string)
	p.Summary, _ = args["summary"].(string)
	if strings.TrimSpace(p.Title) == "" {
		return engine.Failed("create_plan", "title must not be empty"), nil
	}
	if len(p.Files) == 0 {
		return engine.Failed("create_plan", "list at least one file the plan will change"), nil
	}

	created, err := reg.Create(ctx, p)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("register plan: %w", err)
	}
	res, err := engine.SucceededJSON(created.Title, planResult{ID: created.ID, Status: created.Status, Files: created.Files})
	if err != nil {
		return res, err
	}
	res.Output = fmt.Sprintf("Plan %s registered and awaiting user approval. Do not edit the listed files until it is approved.\n%s", created.ID, res.Output)
	res.Metadata = map[string]any{"plan_id": created.ID}
	return res, nil
}

// NewCreatePlanTool registers pending plans in reg.
func NewCreatePlanTool(reg plans.Registry) engine.Tool {
	return engine.Tool{
		Name:        "create_plan",
		Description: createPlanDescription,
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Short name of the change"},
				"summary": {"type": "string", "description": "1-2 sentences on what will be accomplished"},
				"steps": {"type": "array", "items": {"type": "string"}, "description": "Ordered, concrete steps"},
				"files": {"type": "array", "items": {"type": "string"}, "minItems": 1, "description": "Every file the plan will create, edit or delete"}
			},
			"required": ["title", "files"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (engine.ToolResult, error) {
			return createPlan(ctx, reg, args)
		},
		Metadata: engine.ToolMetadata{Category: "planning", Tags: []string{"planning"}},
		PlanMode: true,
	}
}

// NewPlanStatusTool reports the session's plans and their decisions.
func NewPlanStatusTool(reg plans.Registry) engine.Tool {
	return engine.Tool{
		Name:        "plan_status",
		Description: "Lists the plans proposed in this session with their approval status.",
		SchemaJSON:  `{"type":"object","properties":{}}`,
		Fn: func(ctx context.Context, _ map[string]any) (engine.ToolResult, error) {
			ps, err := reg.ActivePlans(ctx)
			if err != nil {
				return engine.ToolResult{}, fmt.Errorf("list plans: %w", err)
			}
			out := make([]planResult, 0, len(ps))
			for _, p := range ps {
				out = append(out, planResult{ID: p.ID, Status: p.Status, Files: p.Files})
			}
			return engine.SucceededJSON("plans", out)
		},
		Metadata: engine.ToolMetadata{Category: "planning", Tags: []string{"read-only"}},
		PlanMode: true,
	}
}
