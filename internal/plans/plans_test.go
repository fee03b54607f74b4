package plans

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registries(t *testing.T) map[string]Registry {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "plans.db"), "session-1")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return map[string]Registry{
		"memory": NewMemoryRegistry("session-1"),
		"sqlite": store,
	}
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			p, err := reg.Create(ctx, Plan{
				Title: "Refactor parser",
				Steps: []string{"split lexer", "add tests"},
				Files: []string{"parser.go", "lexer.go", "parser_test.go"},
			})
			require.NoError(t, err)
			assert.NotEmpty(t, p.ID)
			assert.Equal(t, StatusPending, p.Status)
			assert.Equal(t, "session-1", p.SessionID)

			active, err := reg.ActivePlans(ctx)
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.False(t, AnyUnlocks(active))
			assert.Len(t, Pending(active), 1)

			require.NoError(t, reg.SetStatus(ctx, p.ID, StatusApproved))
			require.NoError(t, reg.SetStatus(ctx, p.ID, StatusExecuting))

			got, err := reg.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusExecuting, got.Status)
			assert.Equal(t, []string{"split lexer", "add tests"}, got.Steps)

			active, err = reg.ActivePlans(ctx)
			require.NoError(t, err)
			assert.True(t, AnyUnlocks(active))
			assert.Empty(t, Pending(active))
		})
	}
}

func TestRegistryRejectsBadTransitions(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			p, err := reg.Create(ctx, Plan{Title: "x"})
			require.NoError(t, err)

			require.NoError(t, reg.SetStatus(ctx, p.ID, StatusRejected))
			assert.ErrorIs(t, reg.SetStatus(ctx, p.ID, StatusApproved), ErrInvalidTransition)
			assert.ErrorIs(t, reg.SetStatus(ctx, "missing", StatusApproved), ErrNotFound)

			_, err = reg.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteStoreSharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plans.db")

	a, err := OpenSQLite(ctx, path, "s1")
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(ctx, path, "s2")
	require.NoError(t, err)
	defer b.Close()

	p, err := a.Create(ctx, Plan{Title: "from a"})
	require.NoError(t, err)

	// another handle can approve by id
	require.NoError(t, b.SetStatus(ctx, p.ID, StatusApproved))
	got, err := a.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)

	// but sessions are kept apart
	mine, err := b.ActivePlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, mine)

	all, err := b.List(ctx, StatusApproved)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAwaitDecisionWakesOnChange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg := NewMemoryRegistry("s")
	p, err := reg.Create(ctx, Plan{Title: "wait"})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = reg.SetStatus(context.Background(), p.ID, StatusApproved)
	}()

	// long poll so only the notification can wake it in time
	got, err := AwaitDecision(ctx, reg, p.ID, reg, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestAwaitDecisionHonorsContext(t *testing.T) {
	reg := NewMemoryRegistry("s")
	p, err := reg.Create(context.Background(), Plan{Title: "wait"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = AwaitDecision(ctx, reg, p.ID, nil, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatcherSignalsDatabaseWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plans.db")
	store, err := OpenSQLite(ctx, path, "s")
	require.NoError(t, err)
	defer store.Close()

	w, err := WatchFile(path)
	require.NoError(t, err)
	defer w.Close()

	changes := w.Changes()
	_, err = store.Create(ctx, Plan{Title: "touch"})
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change notification")
	}
}
