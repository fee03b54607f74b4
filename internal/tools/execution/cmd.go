package execution

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
)

const (
	defaultRunCmdTimeout = 60 * time.Second
	minRunCmdTimeout     = 5 * time.Second
	maxRunCmdTimeout     = 5 * time.Minute
	defaultRunCmdLines   = 40
	minRunCmdLines       = 5
	maxRunCmdLines       = 200
	maxRunCmdChars       = 4000
)

var allowedCommands = []string{
	// build tools
	"go", "gofmt", "goimports",
	"npm", "npx", "yarn", "pnpm", "bun",
	"python", "python3", "pip", "pip3", "pytest", "uv",
	"cargo", "rustc", "rustfmt",
	"make", "cmake", "gradle", "mvn",
	// linters and formatters
	"eslint", "prettier", "biome",
	"ruff", "black", "isort", "mypy", "flake8",
	"tsc", "node", "golangci-lint", "shellcheck",
	// files
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail", "ls", "find", "tree",
	"wc", "grep", "awk", "sed", "sort", "uniq", "diff",
	"git",
	"sh", "bash", "zsh",
	"echo", "printf", "date", "which", "env",
	"tar", "zip", "unzip", "gzip", "gunzip", "jq", "yq",
}

// CommandResult is the JSON shape of every execution tool.
type CommandResult struct {
	Cmd             string `json:"cmd"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	TimedOut        bool   `json:"timed_out,omitempty"`
}

type cmdRequest struct {
	Cmd      string
	Args     string
	Timeout  time.Duration
	MaxLines int
}

func runCmd(ctx context.Context, runner Runner, repoRoot string, req cmdRequest) (engine.ToolResult, error) {
	if !slices.Contains(allowedCommands, req.Cmd) {
		return engine.Failed("run_cmd", fmt.Sprintf("command %q is not allowed. Allowed commands: %s",
			req.Cmd, strings.Join(allowedCommands, ", "))), nil
	}
	args := splitArgs(req.Args)
	return execute(ctx, runner, repoRoot, req.Cmd, args, req.Timeout, req.MaxLines)
}

// execute runs one command and renders it as a tool result. A non-zero exit
// or a timeout fails the call with the captured output attached.
func execute(ctx context.Context, runner Runner, repoRoot, name string, args []string, timeout time.Duration, maxLines int) (engine.ToolResult, error) {
	res, err := runner.RunCmd(ctx, repoRoot, name, args, timeout)
	if ctx.Err() != nil {
		return engine.ToolResult{}, ctx.Err()
	}

	out := CommandResult{Cmd: strings.TrimSpace(name + " " + strings.Join(args, " ")), ExitCode: res.Code, TimedOut: res.TimedOut}
	out.Stdout, out.StdoutTruncated = truncateOutput(res.Stdout, maxLines)
	out.Stderr, out.StderrTruncated = truncateOutput(res.Stderr, maxLines)
	if err != nil && res.Code == 0 {
		out.ExitCode = -1
		if out.Stderr == "" {
			out.Stderr = err.Error()
		}
	}

	result, encErr := engine.SucceededJSON(out.Cmd, out)
	if encErr != nil {
		return engine.ToolResult{}, encErr
	}
	switch {
	case out.TimedOut:
		result.Success = false
		result.Error = fmt.Sprintf("%s timed out", out.Cmd)
	case out.ExitCode != 0:
		result.Success = false
		result.Error = fmt.Sprintf("%s exited with code %d", out.Cmd, out.ExitCode)
	}
	return result, nil
}

// splitArgs splits on spaces outside single or double quotes.
func splitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case quote == 0 && c == ' ':
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

func timeoutArg(v any) time.Duration {
	secs, ok := v.(float64)
	if !ok || secs <= 0 {
		return defaultRunCmdTimeout
	}
	return min(max(time.Duration(secs)*time.Second, minRunCmdTimeout), maxRunCmdTimeout)
}

func maxLinesArg(v any) int {
	n, ok := v.(float64)
	if !ok {
		return defaultRunCmdLines
	}
	return min(max(int(n), minRunCmdLines), maxRunCmdLines)
}

func truncateOutput(s string, maxLines int) (string, bool) {
	if s == "" {
		return "", false
	}
	if maxLines <= 0 {
		maxLines = defaultRunCmdLines
	}
	truncated := false
	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	out := strings.Join(lines, "\n")
	if len(out) > maxRunCmdChars {
		out = out[:maxRunCmdChars]
		truncated = true
	}
	return out, truncated
}

// NewRunCmdTool runs allow-listed commands in repoRoot.
func NewRunCmdTool(runner Runner, repoRoot string) engine.Tool {
	return engine.Tool{
		Name:        "run_cmd",
		Description: "Runs an allow-listed command in the repository root: build tools, linters, file utilities, git and shells. Side effects of commands are not rolled back on abort.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"cmd": {"type":"string","description":"Command name (must be allow-listed)"},
				"args": {"type":"string","description":"Arguments as a space-separated string; quote to keep spaces"},
				"timeout_seconds": {"type":"integer","minimum":5,"maximum":300,"description":"Timeout in seconds (default 60)"},
				"max_output_lines": {"type":"integer","minimum":5,"maximum":200,"description":"Lines of stdout/stderr to keep (default 40)"}
			},
			"required": ["cmd"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (engine.ToolResult, error) {
			req := cmdRequest{Timeout: timeoutArg(args["timeout_seconds"]), MaxLines: maxLinesArg(args["max_output_lines"])}
			req.Cmd, _ = args["cmd"].(string)
			req.Args, _ = args["args"].(string)
			return runCmd(ctx, runner, repoRoot, req)
		},
		Metadata: engine.ToolMetadata{Category: "execution", Tags: []string{"side-effect"}},
	}
}
