package filesystem

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

type spanResult struct {
	Path   string `json:"path"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Total  int    `json:"total_lines"`
	Source string `json:"source"`
}

// readSpan returns lines start..end (1-indexed, inclusive). Out of range or
// swapped bounds are corrected rather than rejected.
func readSpan(fsys FileSystem, repoRoot, path string, start, end int) (engine.ToolResult, error) {
	abs, err := Resolve(repoRoot, path)
	if err != nil {
		return engine.Failed("read_span", err.Error()), nil
	}
	data, err := fsys.ReadFile(abs)
	if err != nil {
		return engine.Failed("read_span", fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}

	lines := strings.Split(string(data), "\n")
	if end < start {
		start, end = end, start
	}
	start = max(start, 1)
	end = min(max(end, 1), len(lines))
	if start > len(lines) {
		return engine.Failed("read_span", fmt.Sprintf("%s has only %d lines", path, len(lines))), nil
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%5d  %s\n", i, lines[i-1])
	}
	return engine.SucceededJSON(fmt.Sprintf("%s:%d-%d", path, start, end), spanResult{
		Path:   path,
		Start:  start,
		End:    end,
		Total:  len(lines),
		Source: b.String(),
	})
}

// NewReadSpanTool reads a line range of a file below repoRoot.
func NewReadSpanTool(fsys FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "read_span",
		Description: "Reads a line range from a file in the repository. Use it after read_file returned an outline or grep pointed at a location.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"File path relative to repository root"},"start":{"type":"integer","description":"Start line (1-indexed, inclusive)"},"end":{"type":"integer","description":"End line (1-indexed, inclusive)"}},"required":["path","start","end"]}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			return readSpan(fsys, repoRoot, stringArg(args, "path"), intArg(args, "start", 1), intArg(args, "end", 1))
		},
		Metadata: engine.ToolMetadata{Category: "filesystem", Tags: []string{"read-only"}},
		PlanMode: true,
	}
}
