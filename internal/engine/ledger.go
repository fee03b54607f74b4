package engine

import (
	"time"

	"github.com/ChamsBouzaiene/autocoder/internal/snapshot"
)

// ActionType is the kind of reversible effect a tool had.
type ActionType string

const (
	ActionFileWrite   ActionType = "file_write"
	ActionFileEdit    ActionType = "file_edit"
	ActionFileDelete  ActionType = "file_delete"
	ActionBashCommand ActionType = "bash_command"
)

// RollbackAction is one entry of the rollback ledger.
type RollbackAction struct {
	Type        ActionType
	ToolCallID  string
	Tool        string
	Description string
	Path        string
	// Original is the pre-image captured before the tool ran. Nil means the
	// action can only be reported, not undone.
	Original *snapshot.FileState
	At       time.Time
}

// Reversible reports whether replaying the action changes anything.
func (a RollbackAction) Reversible() bool {
	return a.Original != nil
}

// Ledger is an append-only record of actions. It shrinks only by draining
// everything in reverse order or by an explicit reset.
type Ledger struct {
	actions []RollbackAction
}

// Push appends an action.
func (l *Ledger) Push(a RollbackAction) {
	l.actions = append(l.actions, a)
}

// Len returns the number of recorded actions.
func (l *Ledger) Len() int {
	return len(l.actions)
}

// Drain empties the ledger and returns its actions newest first.
func (l *Ledger) Drain() []RollbackAction {
	out := make([]RollbackAction, len(l.actions))
	for i, a := range l.actions {
		out[len(l.actions)-1-i] = a
	}
	l.actions = nil
	return out
}

// Reset discards all actions.
func (l *Ledger) Reset() {
	l.actions = nil
}
