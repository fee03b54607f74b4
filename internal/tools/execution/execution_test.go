package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRunner is a mock implementation of the Runner interface.
type MockRunner struct {
	RunCmdFunc func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
	calls      []string
}

func (m *MockRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
	m.calls = append(m.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	if m.RunCmdFunc != nil {
		return m.RunCmdFunc(ctx, repoDir, name, args, timeout)
	}
	return Result{}, nil
}

func TestRunCmd(t *testing.T) {
	tests := []struct {
		name        string
		req         cmdRequest
		mockResult  Result
		mockErr     error
		wantSuccess bool
		wantCalled  bool
		wantStdout  string
		wantError   string
	}{
		{
			name:        "allowed command",
			req:         cmdRequest{Cmd: "go", Args: "version"},
			mockResult:  Result{Stdout: "go version go1.24"},
			wantSuccess: true,
			wantCalled:  true,
			wantStdout:  "go version go1.24",
		},
		{
			name:      "disallowed command",
			req:       cmdRequest{Cmd: "forbidden_cmd", Args: "--some-arg"},
			wantError: "not allowed",
		},
		{
			name:       "non-zero exit",
			req:        cmdRequest{Cmd: "git", Args: "status"},
			mockResult: Result{Stderr: "not a git repository", Code: 128},
			mockErr:    errors.New("exit status 128"),
			wantCalled: true,
			wantError:  "exited with code 128",
		},
		{
			name:      "sleep is not allow-listed",
			req:       cmdRequest{Cmd: "sleep", Args: "10"},
			wantError: "not allowed",
		},
		{
			name:       "timed out command",
			req:        cmdRequest{Cmd: "make", Args: "slow"},
			mockResult: Result{TimedOut: true, Code: -1},
			mockErr:    context.DeadlineExceeded,
			wantCalled: true,
			wantError:  "timed out",
		},
		{
			name:       "command not found",
			req:        cmdRequest{Cmd: "cargo", Args: "build"},
			mockErr:    errors.New(`exec: "cargo": executable file not found in $PATH`),
			wantCalled: true,
			wantError:  "exited with code -1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{
				RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (Result, error) {
					return tt.mockResult, tt.mockErr
				},
			}
			res, err := runCmd(context.Background(), runner, "/tmp", tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantCalled, len(runner.calls) == 1)
			if tt.wantError != "" {
				assert.Contains(t, res.Error, tt.wantError)
			}
			if !tt.wantCalled {
				return
			}
			var out CommandResult
			require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
			assert.Equal(t, tt.wantStdout, out.Stdout)
		})
	}
}

func TestRunCmdReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (Result, error) {
		cancel()
		return Result{Code: -1}, context.Canceled
	}}
	_, err := runCmd(ctx, runner, "/tmp", cmdRequest{Cmd: "go", Args: "test ./..."})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "test ./...", want: []string{"test", "./..."}},
		{in: `commit -m "fix the bug"`, want: []string{"commit", "-m", "fix the bug"}},
		{in: `-c 'echo "hi" there'`, want: []string{"-c", `echo "hi" there`}},
		{in: "  spaced   out ", want: []string{"spaced", "out"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitArgs(tt.in), tt.in)
	}
}

func TestArgClamping(t *testing.T) {
	assert.Equal(t, defaultRunCmdTimeout, timeoutArg(nil))
	assert.Equal(t, minRunCmdTimeout, timeoutArg(float64(1)))
	assert.Equal(t, maxRunCmdTimeout, timeoutArg(float64(9999)))
	assert.Equal(t, defaultRunCmdLines, maxLinesArg("x"))
	assert.Equal(t, maxRunCmdLines, maxLinesArg(float64(1000)))

	out, truncated := truncateOutput(strings.Repeat("line\n", 100), 10)
	assert.True(t, truncated)
	assert.Equal(t, 10, strings.Count(out, "line"))
}

func TestDetectProject(t *testing.T) {
	write := func(dir string, names ...string) {
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
		}
	}

	dir := t.TempDir()
	write(dir, "go.mod", "package.json")
	assert.Equal(t, ProjectGo, DetectProject(dir))

	dir = t.TempDir()
	write(dir, "a.py", "b.py", "c.py", "d.js")
	assert.Equal(t, ProjectPython, DetectProject(dir))

	dir = t.TempDir()
	write(dir, "a.rs", "b.rs")
	assert.Equal(t, ProjectUnknown, DetectProject(dir))
}

func TestRunTests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))

	runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (Result, error) {
		return Result{Stdout: "--- FAIL: TestX", Code: 1}, errors.New("exit status 1")
	}}
	res, err := NewRunTestsTool(runner, dir).Fn(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, false, res.Metadata["passed"])
	assert.Equal(t, []string{"go test ./..."}, runner.calls)

	res, err = NewRunTestsTool(runner, t.TempDir()).Fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "could not detect")
}

func TestRunBuildWithoutBuildStep(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), nil, 0o644))
	runner := &MockRunner{}

	res, err := NewRunBuildTool(runner, dir).Fn(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, runner.calls)
}

func TestHostRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	r := NewHostRunner()
	res, err := r.RunCmd(context.Background(), t.TempDir(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"}, 0)
	require.Error(t, err)
	assert.Equal(t, 3, res.Code)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)

	res, err = r.RunCmd(context.Background(), t.TempDir(), "sh", []string{"-c", "sleep 5"}, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, res.TimedOut)
}
