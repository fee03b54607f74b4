package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// ToolFunc executes a tool with validated arguments. A returned error is
// turned into a failing ToolResult by the scheduler.
type ToolFunc func(ctx context.Context, args map[string]any) (ToolResult, error)

// ToolMetadata categorizes tools.
type ToolMetadata struct {
	Category string   // e.g. "filesystem", "execution", "planning"
	Tags     []string // e.g. ["read-only"]
}

type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	Metadata    ToolMetadata
	// PlanMode marks tools that are still advertised while the model is
	// only allowed to plan.
	PlanMode bool
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.SchemaJSON == "" {
		return nil
	}
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolValidationError{
			ToolName: t.Name,
			Errors:   errorMsgs,
			Schema:   t.SchemaJSON,
			Received: args,
		}
	}
	return nil
}

// ChatMode selects which tools are advertised to the model.
type ChatMode string

const (
	ChatModeAgent ChatMode = "agent"
	ChatModePlan  ChatMode = "plan"
)

type ToolRegistry map[string]Tool

// Register adds tools, replacing any with the same name.
func (r ToolRegistry) Register(tools ...Tool) {
	for _, t := range tools {
		r[t.Name] = t
	}
}

// Get looks a tool up by name.
func (r ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r ToolRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas lists the schemas advertised in the given mode, sorted by name so
// requests are stable across calls.
func (r ToolRegistry) Schemas(mode ChatMode) []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, name := range r.Names() {
		t := r[name]
		if mode == ChatModePlan && !t.PlanMode {
			continue
		}
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
		})
	}
	return s
}
