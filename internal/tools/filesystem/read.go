package filesystem

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

const (
	fullReadLines  = 200
	largeReadLines = 400
)

type readResult struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	LineCount   int    `json:"line_count"`
	Size        string `json:"size"`
	ContentType string `json:"content_type"`
}

// readFile returns small files whole, medium files whole behind a warning and
// large files as an outline of their declarations.
func readFile(fsys FileSystem, repoRoot, path string) (engine.ToolResult, error) {
	abs, err := Resolve(repoRoot, path)
	if err != nil {
		return engine.Failed("read_file", err.Error()), nil
	}
	data, err := fsys.ReadFile(abs)
	if err != nil {
		return engine.Failed("read_file", fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}

	content := string(data)
	lineCount := strings.Count(content, "\n") + 1
	res := readResult{
		Path:        path,
		Content:     content,
		LineCount:   lineCount,
		Size:        units.HumanSize(float64(len(data))),
		ContentType: "full",
	}
	switch {
	case lineCount < fullReadLines:
	case lineCount < largeReadLines:
		res.Content = fmt.Sprintf("WARNING: %s has %d lines. Prefer read_span for focused edits.\n\n", path, lineCount) + content
	default:
		res.Content = outline(content, path, lineCount)
		res.ContentType = "outline"
	}
	return engine.SucceededJSON(path, res)
}

func outline(content, path string, lineCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OUTLINE ONLY: %s has %d lines. Use read_span with the line numbers below.\n\n", path, lineCount)

	lines := strings.Split(content, "\n")
	var prefixes []string
	switch filepath.Ext(path) {
	case ".go":
		prefixes = []string{"package ", "import", "type ", "func ", "const ", "var "}
	case ".py":
		prefixes = []string{"import ", "from ", "class ", "def ", "async def ", "@"}
	case ".ts", ".tsx", ".js", ".jsx":
		prefixes = []string{"import ", "export ", "class ", "function ", "interface ", "type "}
	default:
		return b.String() + headAndTail(lines)
	}

	inComment := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "/*") {
			inComment = true
		}
		if inComment {
			if strings.Contains(trimmed, "*/") {
				inComment = false
			}
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				fmt.Fprintf(&b, "Line %4d: %s\n", i+1, trimmed)
				break
			}
		}
	}
	return b.String()
}

func headAndTail(lines []string) string {
	const edge = 30
	var b strings.Builder
	for i := 0; i < edge && i < len(lines); i++ {
		fmt.Fprintf(&b, "Line %4d: %s\n", i+1, lines[i])
	}
	if len(lines) > 2*edge {
		fmt.Fprintf(&b, "\n... %d lines omitted ...\n\n", len(lines)-2*edge)
		for i := len(lines) - edge; i < len(lines); i++ {
			fmt.Fprintf(&b, "Line %4d: %s\n", i+1, lines[i])
		}
	}
	return b.String()
}

// NewReadFileTool reads a file below repoRoot.
func NewReadFileTool(fsys FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "read_file",
		Description: "Reads a file from the repository. Files over 400 lines are returned as an outline; use read_span for the parts you need.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the repository root"}},"required":["path"]}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			return readFile(fsys, repoRoot, stringArg(args, "path"))
		},
		Metadata: engine.ToolMetadata{Category: "filesystem", Tags: []string{"read-only"}},
		PlanMode: true,
	}
}
