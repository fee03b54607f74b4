// Package plans keeps implementation plans that gate autonomous file edits
// until a user approves them.
package plans

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a plan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusExecuting, StatusRejected:
		return true
	}
	return false
}

var (
	ErrNotFound          = errors.New("plan not found")
	ErrInvalidTransition = errors.New("invalid plan status transition")
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuting, StatusRejected},
}

// CanTransition reports whether a plan may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(id string, from, to Status) error {
	if !to.Valid() || !CanTransition(from, to) {
		return fmt.Errorf("%w: plan %s %s -> %s", ErrInvalidTransition, id, from, to)
	}
	return nil
}

// Plan is a user-approvable implementation proposal.
type Plan struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Steps     []string  `json:"steps"`
	Files     []string  `json:"files"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unlocks reports whether the plan allows unrestricted file mutation.
func (p Plan) Unlocks() bool {
	return p.Status == StatusApproved || p.Status == StatusExecuting
}

// Registry stores the plans of one session.
type Registry interface {
	// Create stores a new pending plan and returns it with its id set.
	Create(ctx context.Context, p Plan) (Plan, error)
	Get(ctx context.Context, id string) (Plan, error)
	// ActivePlans returns every plan of the session, oldest first.
	ActivePlans(ctx context.Context) ([]Plan, error)
	SetStatus(ctx context.Context, id string, status Status) error
}

// Pending filters plans still awaiting a decision.
func Pending(ps []Plan) []Plan {
	var out []Plan
	for _, p := range ps {
		if p.Status == StatusPending {
			out = append(out, p)
		}
	}
	return out
}

// AnyUnlocks reports whether one of the plans is approved or executing.
func AnyUnlocks(ps []Plan) bool {
	for _, p := range ps {
		if p.Unlocks() {
			return true
		}
	}
	return false
}
