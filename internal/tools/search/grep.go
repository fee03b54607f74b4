// Package search finds code in the repository.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/execution"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/filesystem"
)

const (
	grepTimeout    = 10 * time.Second
	maxGrepResults = 100
)

// Match is one matching line.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

type grepResult struct {
	Pattern   string  `json:"pattern"`
	Results   []Match `json:"results"`
	Count     int     `json:"count"`
	Truncated bool    `json:"truncated"`
}

type grepRequest struct {
	Pattern         string
	Path            string
	Globs           string
	CaseInsensitive bool
}

func (r grepRequest) args() []string {
	args := []string{"--json"}
	if r.CaseInsensitive {
		args = append(args, "-i")
	}
	for _, g := range strings.Split(r.Globs, ",") {
		if g = strings.TrimSpace(g); g != "" {
			args = append(args, "-g", g)
		}
	}
	path := r.Path
	if path == "" {
		path = "."
	}
	return append(args, "-e", r.Pattern, path)
}

// grep runs ripgrep and keeps the first maxGrepResults matches. Exit code 1
// means nothing matched.
func grep(ctx context.Context, runner execution.Runner, repoRoot string, req grepRequest) (engine.ToolResult, error) {
	if req.Path != "" {
		if _, err := filesystem.Resolve(repoRoot, req.Path); err != nil {
			return engine.Failed("grep", err.Error()), nil
		}
	}

	res, err := runner.RunCmd(ctx, repoRoot, "rg", req.args(), grepTimeout)
	out := grepResult{Pattern: req.Pattern, Results: []Match{}}
	if err != nil {
		if ctx.Err() != nil {
			return engine.ToolResult{}, ctx.Err()
		}
		if res.Code != 1 {
			return engine.Failed("grep", fmt.Sprintf("rg failed: %v: %s", err, strings.TrimSpace(res.Stderr))), nil
		}
		return engine.SucceededJSON(req.Pattern, out)
	}

	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" || gjson.Get(line, "type").String() != "match" {
			continue
		}
		if len(out.Results) == maxGrepResults {
			out.Truncated = true
			break
		}
		data := gjson.Get(line, "data")
		out.Results = append(out.Results, Match{
			Path:    data.Get("path.text").String(),
			Line:    int(data.Get("line_number").Int()),
			Content: strings.TrimSpace(data.Get("lines.text").String()),
		})
	}
	out.Count = len(out.Results)
	return engine.SucceededJSON(req.Pattern, out)
}

// NewGrepTool searches the repository with ripgrep.
func NewGrepTool(runner execution.Runner, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "grep",
		Description: "Regex code search using ripgrep. Use it to find definitions, references or patterns. Returns at most 100 matches.",
		SchemaJSON:  `{"type":"object","properties":{"pattern":{"type":"string","description":"Regex pattern to search for"},"path":{"type":"string","description":"Optional file or directory to search"},"globs":{"type":"string","description":"Optional comma-separated file globs"},"case_insensitive":{"type":"boolean","description":"Case-insensitive search"}},"required":["pattern"]}`,
		Fn: func(ctx context.Context, args map[string]any) (engine.ToolResult, error) {
			req := grepRequest{}
			req.Pattern, _ = args["pattern"].(string)
			req.Path, _ = args["path"].(string)
			req.Globs, _ = args["globs"].(string)
			req.CaseInsensitive, _ = args["case_insensitive"].(bool)
			return grep(ctx, runner, repoRoot, req)
		},
		Metadata: engine.ToolMetadata{Category: "search", Tags: []string{"read-only"}},
		PlanMode: true,
	}
}
