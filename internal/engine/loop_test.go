package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

func userMsg(s string) []ChatMessage {
	return []ChatMessage{{Role: RoleUser, Content: s}}
}

// fileStore is a fake workspace the write tool records into.
type fileStore struct {
	mu    sync.Mutex
	files map[string]string
}

func (f *fileStore) writeTool() Tool {
	return Tool{
		Name: "write_file",
		Fn: func(_ context.Context, args map[string]any) (ToolResult, error) {
			path, _ := args["path"].(string)
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.files == nil {
				f.files = make(map[string]string)
			}
			f.files[path], _ = args["content"].(string)
			return Succeeded("write "+path, "wrote "+path), nil
		},
	}
}

func (f *fileStore) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func TestRunCompletesAfterToolCalls(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{chunks: append([]Chunk{UsageChunk(Usage{Prompt: 3, Completion: 2, Total: 5})},
			toolTurn(callSpec{"t1", "read_file", `{"path":"a.ts"}`})...)},
		{chunks: []Chunk{ContentChunk("all done"), UsageChunk(Usage{Total: 7}), DoneChunk()}},
	}}
	reg := ToolRegistry{}
	reg.Register(okTool("read_file", func(args map[string]any) string { return "contents of " + args["path"].(string) }))
	rec := &recorder{}

	o := NewOrchestrator(client, reg, nil, nil, rec, LoopConfig{Model: "m"})
	res := o.Run(context.Background(), userMsg("read a.ts"))

	assert.True(t, res.Success)
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.NoError(t, res.Err)
	assert.Equal(t, "all done", res.FinalResponse)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "t1", res.ToolCalls[0].Call.ID)
	assert.Equal(t, 12, res.Usage.Total)
	assert.Equal(t, StateCompleted, o.Controller().State())

	require.Len(t, res.History, 4)
	assert.Equal(t, RoleAssistant, res.History[1].Role)
	assert.Len(t, res.History[1].ToolCalls, 1)
	assert.Equal(t, RoleTool, res.History[2].Role)
	assert.Equal(t, "t1", res.History[2].ToolCallID)
	assert.Equal(t, "contents of a.ts", res.History[2].Content)
	assert.Equal(t, "all done", res.History[3].Content)

	assert.Equal(t, "m", client.requests[0].Model)
	assert.Len(t, client.requests[1].Messages, 3)

	kinds := rec.kinds()
	assert.Equal(t, EventIterationStart, kinds[0])
	assert.Equal(t, EventComplete, kinds[len(kinds)-1])
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{chunks: toolTurn(callSpec{"t1", "think", `{}`})},
	}}
	reg := ToolRegistry{}
	reg.Register(okTool("think", nil))

	res := NewOrchestrator(client, reg, nil, nil, nil, LoopConfig{MaxIterations: 1}).Run(context.Background(), userMsg("go"))
	assert.Equal(t, StopMaxIterations, res.StopReason)
	assert.False(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, client.requestCount())
}

func TestRunConsecutiveFailuresResetOnSuccess(t *testing.T) {
	bad := toolTurn(callSpec{"", "grep", `{"pattern":"x"}`})
	good := toolTurn(callSpec{"", "think", `{}`})
	client := &scriptedClient{turns: []turn{
		{chunks: bad}, {chunks: bad}, {chunks: good}, {chunks: bad}, {chunks: bad},
		{chunks: textTurn("recovered")},
	}}
	reg := ToolRegistry{}
	reg.Register(failingTool("grep"), okTool("think", nil))

	res := NewOrchestrator(client, reg, nil, nil, nil, LoopConfig{MaxConsecutiveErrors: 3}).Run(context.Background(), userMsg("go"))
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.Equal(t, 6, res.Iterations)
	assert.Equal(t, "recovered", res.FinalResponse)
}

func TestRunStopsOnConsecutiveFailures(t *testing.T) {
	bad := toolTurn(callSpec{"", "grep", `{"pattern":"x"}`}, callSpec{"", "nope", `{}`})
	client := &scriptedClient{turns: []turn{{chunks: bad}, {chunks: bad}, {chunks: bad}, {chunks: bad}}}
	reg := ToolRegistry{}
	reg.Register(failingTool("grep"))

	res := NewOrchestrator(client, reg, nil, nil, nil, LoopConfig{MaxConsecutiveErrors: 3}).Run(context.Background(), userMsg("go"))
	assert.Equal(t, StopConsecutiveErrors, res.StopReason)
	assert.Equal(t, 3, res.Iterations)
	assert.False(t, res.Success)
}

func TestRunSurfacesStreamErrors(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{chunks: []Chunk{ContentChunk("partial"), ErrorChunk(errors.New("status 429: rate limit exceeded"))}},
	}}
	rec := &recorder{}
	res := NewOrchestrator(client, ToolRegistry{}, nil, nil, rec, LoopConfig{}).Run(context.Background(), userMsg("go"))

	assert.Equal(t, StopError, res.StopReason)
	assert.False(t, res.Success)
	var runErr *RunError
	require.ErrorAs(t, res.Err, &runErr)
	assert.Equal(t, "model_stream", runErr.Operation)
	var perr *ProviderError
	require.ErrorAs(t, res.Err, &perr)
	assert.Equal(t, RetryClassRetryable, perr.Class)
	assert.Equal(t, 1, rec.count(EventError))
	assert.Equal(t, 1, client.requestCount(), "stream errors are not retried")
}

func TestRunFeedsDecodeErrorsBack(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{chunks: toolTurn(callSpec{"t1", "write_file", `{"path":"a.go","content":"package`})},
		{chunks: textTurn("ok")},
	}}
	store := &fileStore{}
	reg := ToolRegistry{}
	reg.Register(store.writeTool())

	res := NewOrchestrator(client, reg, nil, nil, nil, LoopConfig{}).Run(context.Background(), userMsg("go"))
	require.Equal(t, StopCompleted, res.StopReason)
	assert.False(t, store.has("a.go"))
	assert.True(t, strings.HasPrefix(res.History[2].Content, "ERROR: "))
	assert.Contains(t, res.History[2].Content, "cut off")
}

func TestRunEmitsSoftCapWarning(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{chunks: toolTurn(callSpec{"a", "think", `{}`}, callSpec{"b", "think", `{}`}, callSpec{"c", "think", `{}`})},
		{chunks: toolTurn(callSpec{"d", "think", `{}`})},
	}}
	reg := ToolRegistry{}
	reg.Register(okTool("think", nil))
	rec := &recorder{}

	res := NewOrchestrator(client, reg, nil, nil, rec, LoopConfig{SoftToolCallCap: 2}).Run(context.Background(), userMsg("go"))
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.Equal(t, 1, rec.count(EventWarning))
}

func TestRunWaitsWhilePaused(t *testing.T) {
	client := &scriptedClient{}
	ctrl := NewController(nil, nil)
	require.NoError(t, ctrl.Pause())
	o := NewOrchestrator(client, ToolRegistry{}, ctrl, nil, nil, LoopConfig{})

	done := make(chan AgentResult, 1)
	go func() { done <- o.Run(context.Background(), userMsg("go")) }()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, client.requestCount(), "no model call while paused")

	require.NoError(t, ctrl.Resume())
	select {
	case res := <-done:
		assert.Equal(t, StopCompleted, res.StopReason)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after resume")
	}
}

func TestRunCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{turns: []turn{{chunks: []Chunk{ContentChunk("thinking")}, block: true}}}
	o := NewOrchestrator(client, ToolRegistry{}, nil, nil, nil, LoopConfig{})

	done := make(chan AgentResult, 1)
	go func() { done <- o.Run(ctx, userMsg("go")) }()
	require.Eventually(t, func() bool { return client.requestCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	res := <-done
	assert.Equal(t, StopAborted, res.StopReason)
	assert.NoError(t, res.Err)
}

func buildAgent(t *testing.T, client ModelClient, reg ToolRegistry, planReg plans.Registry, events EventHandler) *Agent {
	t.Helper()
	b := NewAgentBuilder().WithModel("test").WithModelClient(client).WithTools(reg).WithPlans(planReg)
	if events != nil {
		b = b.WithEventHandler(events)
	}
	a, err := b.Build()
	require.NoError(t, err)
	return a
}

func TestAgentAbortStopsStreamingRun(t *testing.T) {
	client := &scriptedClient{turns: []turn{{block: true}}}
	reg := ToolRegistry{}
	reg.Register(okTool("think", nil))
	rec := &recorder{}
	a := buildAgent(t, client, reg, nil, rec)

	done := make(chan AgentResult, 1)
	go func() { done <- a.Run(context.Background(), "go") }()
	require.Eventually(t, func() bool { return client.requestCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := a.Abort(context.Background(), true)
	require.NoError(t, err)

	select {
	case res := <-done:
		assert.Equal(t, StopAborted, res.StopReason)
		assert.False(t, res.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not stop the run")
	}
	assert.Equal(t, StateAborted, a.State())
	assert.Equal(t, 1, rec.count(EventAborted))

	res := a.Run(context.Background(), "again")
	assert.Equal(t, StopAborted, res.StopReason)
}

func TestAgentStepModeGatesToolCalls(t *testing.T) {
	client := &scriptedClient{turns: []turn{
		{chunks: toolTurn(callSpec{"t1", "think", `{}`})},
	}}
	var ran sync.WaitGroup
	ran.Add(1)
	reg := ToolRegistry{}
	reg.Register(okTool("think", func(map[string]any) string { ran.Done(); return "thought" }))
	a := buildAgent(t, client, reg, nil, nil)
	require.NoError(t, a.SetStepMode(true))

	done := make(chan AgentResult, 1)
	go func() { done <- a.Run(context.Background(), "go") }()

	require.Eventually(t, a.IsWaitingForStep, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, a.Step())
	ran.Wait()

	res := <-done
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.Equal(t, StateCompleted, a.State())
}

func TestAgentKeepsHistoryAcrossRuns(t *testing.T) {
	client := &scriptedClient{turns: []turn{{chunks: textTurn("one")}, {chunks: textTurn("two")}}}
	reg := ToolRegistry{}
	reg.Register(okTool("think", nil))
	a := buildAgent(t, client, reg, nil, nil)

	assert.Equal(t, StopCompleted, a.Run(context.Background(), "first").StopReason)
	assert.Equal(t, StopCompleted, a.Run(context.Background(), "second").StopReason)

	h := a.History()
	require.Len(t, h, 4)
	assert.Equal(t, "second", h[2].Content)
	assert.Equal(t, "two", h[3].Content)
}

func createPlanTool(reg plans.Registry) Tool {
	return Tool{
		Name:     "create_plan",
		PlanMode: true,
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			var files []string
			for _, f := range args["files"].([]any) {
				files = append(files, f.(string))
			}
			p, err := reg.Create(ctx, plans.Plan{Title: args["title"].(string), Files: files})
			if err != nil {
				return ToolResult{}, err
			}
			return Succeeded("plan created", "plan "+p.ID+" awaits approval"), nil
		},
	}
}

func TestAgentRunUntilSettledUnlocksAfterApproval(t *testing.T) {
	planReg := plans.NewMemoryRegistry("s")
	store := &fileStore{}
	client := &scriptedClient{turns: []turn{
		{chunks: toolTurn(
			callSpec{"w1", "write_file", `{"path":"a.go","content":"a"}`},
			callSpec{"w2", "write_file", `{"path":"b.go","content":"b"}`},
			callSpec{"w3", "write_file", `{"path":"c.go","content":"c"}`},
		)},
		{chunks: toolTurn(callSpec{"p1", "create_plan", `{"title":"three files","files":["a.go","b.go","c.go"]}`})},
		{chunks: textTurn("Waiting for approval.")},
		{chunks: toolTurn(callSpec{"w4", "write_file", `{"path":"c.go","content":"c"}`})},
		{chunks: textTurn("Done.")},
	}}
	reg := ToolRegistry{}
	reg.Register(store.writeTool(), createPlanTool(planReg))
	a := buildAgent(t, client, reg, planReg, nil)

	var asked []string
	approver := PlanApproverFunc(func(_ context.Context, p plans.Plan) (plans.Status, error) {
		asked = append(asked, p.Title)
		return plans.StatusApproved, nil
	})
	res := a.RunUntilSettled(context.Background(), "touch three files", approver)

	require.Equal(t, StopCompleted, res.StopReason, res.Err)
	assert.Equal(t, "Done.", res.FinalResponse)
	assert.Equal(t, []string{"three files"}, asked)
	assert.True(t, store.has("c.go"))
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, a.ModifiedFiles())

	active, err := planReg.ActivePlans(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, plans.StatusExecuting, active[0].Status)

	var directive string
	for _, m := range a.History() {
		if m.Role == RoleUser && strings.Contains(m.Content, "was approved") {
			directive = m.Content
		}
	}
	assert.Contains(t, directive, "three files")
}

func TestAgentRunUntilSettledRejection(t *testing.T) {
	planReg := plans.NewMemoryRegistry("s")
	client := &scriptedClient{turns: []turn{
		{chunks: toolTurn(callSpec{"p1", "create_plan", `{"title":"rewrite","files":["x.go"]}`})},
		{chunks: textTurn("Waiting.")},
		{chunks: textTurn("Understood, what should change?")},
	}}
	reg := ToolRegistry{}
	reg.Register(createPlanTool(planReg))
	a := buildAgent(t, client, reg, planReg, nil)

	res := a.RunUntilSettled(context.Background(), "rewrite x", PlanApproverFunc(func(context.Context, plans.Plan) (plans.Status, error) {
		return plans.StatusRejected, nil
	}))
	assert.Equal(t, StopCompleted, res.StopReason)
	assert.Equal(t, "Understood, what should change?", res.FinalResponse)

	active, err := planReg.ActivePlans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, plans.StatusRejected, active[0].Status)
	assert.Equal(t, 3, client.requestCount())
}

func TestAgentBuilderValidates(t *testing.T) {
	_, err := NewAgentBuilder().Build()
	assert.Error(t, err)
	_, err = NewAgentBuilder().WithModelClient(&scriptedClient{}).Build()
	assert.Error(t, err)
}

func TestZeroLoopConfigUsesDefaultPlanThreshold(t *testing.T) {
	o := NewOrchestrator(&scriptedClient{}, ToolRegistry{}, nil, nil, nil, LoopConfig{})
	assert.Equal(t, DefaultPlanThreshold, o.gate.threshold)
	require.NotNil(t, o.cfg.PlanThreshold)
	assert.Equal(t, DefaultPlanThreshold, *o.cfg.PlanThreshold)

	strict := NewOrchestrator(&scriptedClient{}, ToolRegistry{}, nil, nil, nil, LoopConfig{PlanThreshold: Threshold(0)})
	assert.Equal(t, 0, strict.gate.threshold)
	write := ToolCall{Name: "write_file", Args: map[string]any{"path": "a.go"}}
	_, refused := strict.gate.Check(context.Background(), write)
	assert.True(t, refused)

	disabled := NewOrchestrator(&scriptedClient{}, ToolRegistry{}, nil, nil, nil, LoopConfig{PlanThreshold: Threshold(-1)})
	_, refused = disabled.gate.Check(context.Background(), write)
	assert.False(t, refused)
}
