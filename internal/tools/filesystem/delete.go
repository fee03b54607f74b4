package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

type deleteResult struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// deleteFile removes a single file. A missing file counts as deleted.
func deleteFile(fsys FileSystem, repoRoot, path string) (engine.ToolResult, error) {
	if path == "" {
		return engine.Failed("delete_file", "path cannot be empty"), nil
	}
	abs, err := Resolve(repoRoot, path)
	if err != nil {
		return engine.Failed("delete_file", err.Error()), nil
	}

	info, err := fsys.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return engine.SucceededJSON(path, deleteResult{Path: path, Message: "file does not exist (already deleted)"})
	}
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return engine.Failed("delete_file", fmt.Sprintf("cannot delete directory %s", path)), nil
	}
	if err := fsys.Remove(abs); err != nil {
		return engine.ToolResult{}, fmt.Errorf("delete %s: %w", path, err)
	}
	return engine.SucceededJSON(path, deleteResult{Path: path, Message: "file deleted"})
}

// NewDeleteFileTool deletes files below repoRoot.
func NewDeleteFileTool(fsys FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "delete_file",
		Description: "Deletes a file from the repository. Cannot delete directories. Deletions are undone when the run is aborted with rollback.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file to delete, relative to the repository root"}},"required":["path"]}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			return deleteFile(fsys, repoRoot, stringArg(args, "path"))
		},
		Metadata: engine.ToolMetadata{Category: "filesystem", Tags: []string{"delete", "side-effect"}},
	}
}
