// Package execution runs repository commands on the host.
package execution

import (
	"context"
	"time"
)

const defaultCmdTimeout = 2 * time.Minute

// Result is the outcome of one command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner runs a command inside a repository directory. It is mocked in tests.
type Runner interface {
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
}

// HostRunner runs commands directly on the host without isolation.
type HostRunner struct {
	// DefaultTimeout applies when a call passes no timeout.
	DefaultTimeout time.Duration
}

// NewHostRunner returns a HostRunner with the default timeout.
func NewHostRunner() *HostRunner {
	return &HostRunner{DefaultTimeout: defaultCmdTimeout}
}

func (r *HostRunner) timeout(t time.Duration) time.Duration {
	switch {
	case t > 0:
		return t
	case r.DefaultTimeout > 0:
		return r.DefaultTimeout
	}
	return defaultCmdTimeout
}
