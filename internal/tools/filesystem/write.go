package filesystem

import (
	"context"
	"fmt"
	"path/filepath"

	units "github.com/docker/go-units"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

type writeResult struct {
	Path  string `json:"path"`
	Bytes string `json:"bytes"`
}

func writeFile(fsys FileSystem, repoRoot, path, content string) (engine.ToolResult, error) {
	abs, err := Resolve(repoRoot, path)
	if err != nil {
		return engine.Failed("write_file", err.Error()), nil
	}
	if err := fsys.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return engine.ToolResult{}, fmt.Errorf("create directory: %w", err)
	}
	if err := fsys.WriteFile(abs, []byte(content), 0o644); err != nil {
		return engine.ToolResult{}, fmt.Errorf("write %s: %w", path, err)
	}
	return engine.SucceededJSON(path, writeResult{Path: path, Bytes: units.HumanSize(float64(len(content)))})
}

// NewWriteFileTool writes whole files below repoRoot.
func NewWriteFileTool(fsys FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "write_file",
		Description: "Writes content to a file. Creates the file if it doesn't exist, overwrites if it does.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the repository root"},"content":{"type":"string","description":"Content to write to the file"}},"required":["path","content"]}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			return writeFile(fsys, repoRoot, stringArg(args, "path"), stringArg(args, "content"))
		},
		Metadata: engine.ToolMetadata{Category: "filesystem", Tags: []string{"write", "side-effect"}},
	}
}
