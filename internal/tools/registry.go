// Package tools assembles the tool registry the agent advertises.
package tools

import (
	"errors"
	"log/slog"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/editing"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/execution"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/reasoning"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/search"
)

// Set selects tool groups.
type Set struct {
	Filesystem bool
	Search     bool
	Execution  bool
	Editing    bool
	Meta       bool
	Planning   bool
}

// AllTools enables every group.
var AllTools = Set{Filesystem: true, Search: true, Execution: true, Editing: true, Meta: true, Planning: true}

// Options carries the collaborators tools need. Zero values fall back to the
// host filesystem, a host command runner and the default logger.
type Options struct {
	FS     filesystem.FileSystem
	Runner execution.Runner
	Plans  plans.Registry
	Logger *slog.Logger
}

// NewRegistry builds the registry for repoRoot. Planning tools need
// Options.Plans.
func NewRegistry(repoRoot string, set Set, opts Options) (engine.ToolRegistry, error) {
	if repoRoot == "" {
		return nil, errors.New("tools: repository root is required")
	}
	if opts.FS == nil {
		opts.FS = filesystem.NewOSFileSystem()
	}
	if opts.Runner == nil {
		opts.Runner = execution.NewHostRunner()
	}
	if set.Planning && opts.Plans == nil {
		return nil, errors.New("tools: planning tools need a plan registry")
	}

	reg := make(engine.ToolRegistry)
	if set.Filesystem {
		reg.Register(
			filesystem.NewReadFileTool(opts.FS, repoRoot),
			filesystem.NewReadSpanTool(opts.FS, repoRoot),
			filesystem.NewListFilesTool(opts.FS, repoRoot),
			filesystem.NewWriteFileTool(opts.FS, repoRoot),
			filesystem.NewDeleteFileTool(opts.FS, repoRoot),
		)
	}
	if set.Search {
		reg.Register(search.NewGrepTool(opts.Runner, repoRoot))
	}
	if set.Execution {
		reg.Register(
			execution.NewRunCmdTool(opts.Runner, repoRoot),
			execution.NewRunTestsTool(opts.Runner, repoRoot),
			execution.NewRunBuildTool(opts.Runner, repoRoot),
		)
	}
	if set.Editing {
		reg.Register(
			editing.NewSearchReplaceTool(opts.FS, repoRoot),
			editing.NewWriteTool(opts.FS, repoRoot),
		)
	}
	if set.Meta {
		reg.Register(reasoning.NewThinkTool(opts.Logger))
	}
	if set.Planning {
		reg.Register(
			reasoning.NewCreatePlanTool(opts.Plans),
			reasoning.NewPlanStatusTool(opts.Plans),
		)
	}
	return reg, nil
}
