package reasoning

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

func TestThinkLogsReasoning(t *testing.T) {
	var buf bytes.Buffer
	tool := NewThinkTool(slog.New(slog.NewTextHandler(&buf, nil)))

	require.Error(t, tool.ValidateArgs(map[string]any{"reasoning": ""}))
	res, err := tool.Fn(context.Background(), map[string]any{"reasoning": "edit loop.go first"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, buf.String(), "edit loop.go first")
}

func TestCreatePlan(t *testing.T) {
	reg := plans.NewMemoryRegistry("s1")
	tool := NewCreatePlanTool(reg)
	args := map[string]any{
		"title":   "split scheduler",
		"summary": "Move batching into its own file.",
		"steps":   []any{"add batch.go", "", "update callers"},
		"files":   []any{"batch.go", "scheduler.go"},
	}
	require.NoError(t, tool.ValidateArgs(args))

	res, err := tool.Fn(context.Background(), args)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Output, "awaiting user approval")

	ps, err := reg.ActivePlans(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, plans.StatusPending, ps[0].Status)
	assert.Equal(t, []string{"add batch.go", "update callers"}, ps[0].Steps)
	assert.Equal(t, []string{"batch.go", "scheduler.go"}, ps[0].Files)
	assert.Equal(t, ps[0].ID, res.Metadata["plan_id"])
}

func TestCreatePlanRejectsIncompletePlans(t *testing.T) {
	reg := plans.NewMemoryRegistry("s1")
	for _, args := range []map[string]any{
		{"title": " ", "files": []any{"a.go"}},
		{"title": "x", "files": []any{}},
		{"title": "x"},
	} {
		res, err := createPlan(context.Background(), reg, args)
		require.NoError(t, err)
		assert.False(t, res.Success)
	}
	ps, _ := reg.ActivePlans(context.Background())
	assert.Empty(t, ps)
}

type failingRegistry struct{ plans.Registry }

func (failingRegistry) Create(context.Context, plans.Plan) (plans.Plan, error) {
	return plans.Plan{}, errors.New("disk full")
}

func TestCreatePlanSurfacesRegistryErrors(t *testing.T) {
	_, err := createPlan(context.Background(), failingRegistry{}, map[string]any{"title": "x", "files": []any{"a.go"}})
	assert.ErrorContains(t, err, "disk full")
}

func TestPlanStatus(t *testing.T) {
	ctx := context.Background()
	reg := plans.NewMemoryRegistry("s1")
	p, err := reg.Create(ctx, plans.Plan{Title: "a", Files: []string{"a.go"}})
	require.NoError(t, err)
	require.NoError(t, reg.SetStatus(ctx, p.ID, plans.StatusApproved))

	res, err := NewPlanStatusTool(reg).Fn(ctx, nil)
	require.NoError(t, err)
	var out []planResult
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	require.Len(t, out, 1)
	assert.Equal(t, plans.StatusApproved, out[0].Status)
}
