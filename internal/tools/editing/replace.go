// Package editing holds the tools that change file contents in place.
package editing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/filesystem"
)

const (
	maxEditLines  = 500
	warnEditLines = 200
)

type replaceResult struct {
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
	Warning      string `json:"warning,omitempty"`
}

type replaceRequest struct {
	Path       string
	Old        string
	New        string
	ReplaceAll bool
}

// searchReplace swaps an exact, unique occurrence of Old for New, or every
// occurrence when ReplaceAll is set.
func searchReplace(fsys filesystem.FileSystem, repoRoot string, req replaceRequest) (engine.ToolResult, error) {
	const title = "search_replace"
	abs, err := filesystem.Resolve(repoRoot, req.Path)
	if err != nil {
		return engine.Failed(title, err.Error()), nil
	}
	if !isTextFile(abs) {
		return engine.Failed(title, fmt.Sprintf("%s is not an editable text file", req.Path)), nil
	}
	if req.Old == req.New {
		return engine.Failed(title, "old_string and new_string are identical, nothing to change"), nil
	}
	if req.Old == "" {
		return engine.Failed(title, "old_string is empty; use write to create files"), nil
	}

	data, err := fsys.ReadFile(abs)
	if err != nil {
		return engine.Failed(title, fmt.Sprintf("cannot read %s: %v", req.Path, err)), nil
	}
	content := string(data)
	if marker, ok := generatedMarker(content); ok {
		return engine.Failed(title, fmt.Sprintf("%s looks generated (found %q); edit its generator instead", req.Path, marker)), nil
	}
	warning, err := checkEditSize(req.Old)
	if err != nil {
		return engine.Failed(title, err.Error()), nil
	}

	count := strings.Count(content, req.Old)
	switch {
	case count == 0:
		return engine.Failed(title, notFoundMessage(content, req.Old)), nil
	case count > 1 && !req.ReplaceAll:
		return engine.Failed(title, fmt.Sprintf(
			"old_string appears %d times%s. Include more surrounding context to make it unique, or set replace_all=true",
			count, occurrenceLines(content, req.Old))), nil
	}

	n := 1
	if req.ReplaceAll {
		n = -1
	}
	updated := strings.Replace(content, req.Old, req.New, n)
	if err := fsys.WriteFile(abs, []byte(updated), 0o644); err != nil {
		return engine.ToolResult{}, fmt.Errorf("write %s: %w", req.Path, err)
	}
	replaced := 1
	if req.ReplaceAll {
		replaced = count
	}
	return engine.SucceededJSON(req.Path, replaceResult{Path: req.Path, Replacements: replaced, Warning: warning})
}

func notFoundMessage(content, old string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "old_string not found. The file indents with %s; re-read it and copy the exact text", indentation(content))
	if strings.Contains(strings.Join(strings.Fields(content), " "), strings.Join(strings.Fields(old), " ")) {
		b.WriteString(". The text exists with different whitespace")
	}
	return b.String()
}

func occurrenceLines(content, old string) string {
	first := strings.TrimSpace(strings.SplitN(old, "\n", 2)[0])
	if first == "" {
		return ""
	}
	var nums []int
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, first) {
			nums = append(nums, i+1)
			if len(nums) == 5 {
				break
			}
		}
	}
	if len(nums) == 0 {
		return ""
	}
	return fmt.Sprintf(" (near lines %v)", nums)
}

var textExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".rs": true, ".rb": true, ".php": true, ".html": true, ".css": true, ".scss": true,
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".sh": true, ".bash": true, ".zsh": true, ".sql": true, ".xml": true, ".mod": true,
	".sum": true, ".proto": true, ".env": true, ".ini": true, ".cfg": true,
}

var textNames = map[string]bool{
	"Makefile": true, "Dockerfile": true, ".gitignore": true, "README": true, "LICENSE": true,
}

func isTextFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))] || textNames[filepath.Base(path)]
}

var generatedMarkers = []string{
	"Code generated",
	"DO NOT EDIT",
	"Auto-generated",
	"automatically generated",
	"This file is generated",
}

func generatedMarker(content string) (string, bool) {
	head := content[:min(len(content), 500)]
	for _, m := range generatedMarkers {
		if strings.Contains(head, m) {
			return m, true
		}
	}
	return "", false
}

func checkEditSize(old string) (string, error) {
	lines := strings.Count(old, "\n")
	switch {
	case lines > maxEditLines:
		return "", fmt.Errorf("old_string spans %d lines (max %d); split the change", lines, maxEditLines)
	case lines > warnEditLines:
		return fmt.Sprintf("old_string spans %d lines; smaller edits are safer", lines), nil
	}
	return "", nil
}

func indentation(content string) string {
	switch {
	case strings.Contains(content, "\n\t"):
		return "tabs"
	case strings.Contains(content, "\n    "):
		return "4 spaces"
	case strings.Contains(content, "\n  "):
		return "2 spaces"
	}
	return "no indentation"
}

// NewSearchReplaceTool edits files below repoRoot by exact replacement.
func NewSearchReplaceTool(fsys filesystem.FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "search_replace",
		Description: "Replaces an exact string in a file. This is the primary editing tool; read the file first so old_string matches byte for byte.",
		SchemaJSON:  `{"type":"object","properties":{"file_path":{"type":"string","description":"File path relative to the repository root"},"old_string":{"type":"string","description":"Exact text to replace"},"new_string":{"type":"string","description":"Replacement text"},"replace_all":{"type":"boolean","description":"Replace every occurrence"}},"required":["file_path","old_string","new_string"]}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			req := replaceRequest{}
			req.Path, _ = args["file_path"].(string)
			req.Old, _ = args["old_string"].(string)
			req.New, _ = args["new_string"].(string)
			req.ReplaceAll, _ = args["replace_all"].(bool)
			return searchReplace(fsys, repoRoot, req)
		},
		Metadata: engine.ToolMetadata{Category: "editing", Tags: []string{"write", "side-effect"}},
	}
}
