package filesystem

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

const defaultListLimit = 1000

var defaultIgnores = []string{".git", "node_modules"}

type listOptions struct {
	Path      string
	Recursive bool
	MaxDepth  int
	Limit     int
	Ignore    []string
}

type listResult struct {
	Path      string   `json:"path"`
	Files     []string `json:"files"`
	Recursive bool     `json:"recursive"`
	Truncated bool     `json:"truncated"`
}

func listFiles(fsys FileSystem, repoRoot string, opts listOptions) (engine.ToolResult, error) {
	dir, err := Resolve(repoRoot, opts.Path)
	if err != nil {
		return engine.Failed("list_files", err.Error()), nil
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if len(opts.Ignore) == 0 {
		opts.Ignore = defaultIgnores
	}
	matcher := gitignore.CompileIgnoreLines(opts.Ignore...)
	root := filepath.Clean(repoRoot)

	res := listResult{Path: opts.Path, Files: []string{}, Recursive: opts.Recursive}
	add := func(abs string) bool {
		res.Files = append(res.Files, Rel(root, abs))
		if len(res.Files) >= opts.Limit {
			res.Truncated = true
			return false
		}
		return true
	}

	if !opts.Recursive {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return engine.Failed("list_files", err.Error()), nil
		}
		for _, e := range entries {
			abs := filepath.Join(dir, e.Name())
			if matcher.MatchesPath(Rel(root, abs)) {
				continue
			}
			if !add(abs) {
				break
			}
		}
		return engine.SucceededJSON(opts.Path, res)
	}

	err = fsys.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == dir {
			return nil
		}
		if matcher.MatchesPath(Rel(root, p)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.MaxDepth >= 0 {
			rel, _ := filepath.Rel(dir, p)
			if strings.Count(rel, string(filepath.Separator)) > opts.MaxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if !add(p) {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return engine.ToolResult{}, err
	}
	return engine.SucceededJSON(opts.Path, res)
}

// NewListFilesTool lists files below repoRoot, honoring gitignore-style
// patterns.
func NewListFilesTool(fsys FileSystem, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "list_files",
		Description: "Lists files in the repository. Use this to discover which files exist before reading them.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Subdirectory relative to the repository root (empty for the root)"},
			"recursive":{"type":"boolean","description":"List recursively. Default: false"},
			"max_depth":{"type":"integer","description":"Maximum depth for recursive listing. Default: -1 (unlimited)"},
			"limit":{"type":"integer","description":"Maximum number of entries. Default: 1000"},
			"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"gitignore-style patterns. Default: ['.git', 'node_modules']"}
		}}`,
		Fn: func(_ context.Context, args map[string]any) (engine.ToolResult, error) {
			opts := listOptions{
				Path:     stringArg(args, "path"),
				MaxDepth: intArg(args, "max_depth", -1),
				Limit:    intArg(args, "limit", defaultListLimit),
			}
			opts.Recursive, _ = args["recursive"].(bool)
			if raw, ok := args["ignore_patterns"].([]any); ok {
				for _, p := range raw {
					if s, ok := p.(string); ok {
						opts.Ignore = append(opts.Ignore, s)
					}
				}
			}
			return listFiles(fsys, repoRoot, opts)
		},
		Metadata: engine.ToolMetadata{Category: "filesystem", Tags: []string{"read-only"}},
		PlanMode: true,
	}
}
