package execution

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// RunCmd implements Runner.
func (r *HostRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout(timeout))
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = repoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), TimedOut: cctx.Err() != nil}
	if err != nil {
		res.Code = 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Code = exitErr.ExitCode()
		}
	}
	return res, err
}
