package editing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/filesystem"
)

type writeStatus string

const (
	writeCreated     writeStatus = "created"
	writeOverwritten writeStatus = "overwritten"
	writeSkipped     writeStatus = "skipped"
)

type writeResult struct {
	Path   string      `json:"path"`
	Status writeStatus `json:"status"`
	Lines  int         `json:"lines"`
}

// write stores complete file contents, skipping the write when the file
// already holds them.
func write(fsys filesystem.FileSystem, repoRoot, path, content string) (engine.ToolResult, error) {
	abs, err := filesystem.Resolve(repoRoot, path)
	if err != nil {
		return engine.Failed("write", err.Error()), nil
	}
	if !isTextFile(abs) {
		return engine.Failed("write", fmt.Sprintf("%s is not a text file; write only creates text files", path)), nil
	}

	res := writeResult{Path: path, Status: writeCreated, Lines: strings.Count(content, "\n") + 1}
	if info, err := fsys.Stat(abs); err == nil {
		if info.IsDir() {
			return engine.Failed("write", fmt.Sprintf("%s is a directory", path)), nil
		}
		res.Status = writeOverwritten
		if existing, err := fsys.ReadFile(abs); err == nil && string(existing) == content {
			res.Status = writeSkipped
			return engine.SucceededJSON(path, res)
		}
	}

	if err := fsys.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return engine.ToolResult{}, fmt.Errorf("create directory: %w", err)
	}
	if err := fsys.WriteFile(abs, []byte(content), 0o644); err != nil {
		return engine.ToolResult{}, fmt.Errorf("write %s: %w", path, err)
	}
	return engine.SucceededJSON(path, res)
}

// NewWriteTool creates or overwrites whole text files below repoRoot.
func NewWriteTool(fsys filesystem.FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "write",
		Description: "Writes complete file contents. Creates new files or overwrites existing ones; prefer search_replace for changes to existing files.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"File path relative to the repository root"},"content":{"type":"string","description":"The complete file content"}},"required":["path","content"]}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			return write(fsys, repoRoot, path, content)
		},
		Metadata: engine.ToolMetadata{Category: "editing", Tags: []string{"write", "side-effect"}},
	}
}
