package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
	"github.com/ChamsBouzaiene/autocoder/internal/project"
	"github.com/ChamsBouzaiene/autocoder/internal/prompts"
	"github.com/ChamsBouzaiene/autocoder/internal/providers"
	"github.com/ChamsBouzaiene/autocoder/internal/session"
	"github.com/ChamsBouzaiene/autocoder/internal/snapshot"
	"github.com/ChamsBouzaiene/autocoder/internal/tools"
	"github.com/ChamsBouzaiene/autocoder/internal/tools/execution"
)

var runFlags struct {
	step          bool
	jsonEvents    bool
	controlStdin  bool
	maxIterations int
	autoApprove   bool
	summarize     bool
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run the agent on a task",
	Long: `Run the agent loop on a task until it answers without tool calls, stops on
errors, or runs out of iterations.

While running, type s to step, c to leave step mode, p/r to pause and resume,
y/n to decide a pending plan, and q to abort with rollback. Ctrl+C aborts and
rolls back file changes; a second Ctrl+C quits immediately.

With --control-stdin, stdin instead carries NDJSON commands
({"type":"pause"}, {"type":"plan_decision","plan_id":"...","approved":true}).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.step, "step", false, "Start in step mode: every tool call waits for confirmation")
	runCmd.Flags().BoolVar(&runFlags.jsonEvents, "json-events", false, "Write engine events to stdout as NDJSON")
	runCmd.Flags().BoolVar(&runFlags.controlStdin, "control-stdin", false, "Read NDJSON control commands from stdin")
	runCmd.Flags().IntVarP(&runFlags.maxIterations, "max-iterations", "i", 0, "Iteration budget (default from config)")
	runCmd.Flags().BoolVar(&runFlags.autoApprove, "auto-approve", false, "Approve every plan without asking")
	runCmd.Flags().BoolVar(&runFlags.summarize, "summarize", false, "Ask the model for a title and summary of the recorded run")
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("prompt must not be empty")
	}
	if runFlags.maxIterations < 0 {
		return errors.New("max-iterations must be >= 0")
	}

	runID := uuid.NewString()
	env, err := prepareRuntimeEnv(cmd.Context(), rootFlags.repo, runID, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg := env.Config
	if runFlags.maxIterations > 0 {
		cfg.MaxIterations = runFlags.maxIterations
	}
	if runFlags.step {
		cfg.StepMode = true
	}

	client, model, err := providers.New(cfg.ProviderConfig())
	if err != nil {
		return err
	}
	reg, err := tools.NewRegistry(env.RepoRoot, tools.AllTools, tools.Options{Plans: env.Plans, Logger: env.Logger})
	if err != nil {
		return err
	}
	rules, err := project.LoadRules(env.RepoRoot)
	if err != nil {
		return err
	}
	system, err := prompts.AgentSystemPrompt(env.RepoRoot, string(execution.DetectProject(env.RepoRoot)), cfg.PlanThreshold, rules)
	if err != nil {
		return err
	}

	term := newTerminal(os.Stdout)
	builder := engine.NewAgentBuilder().
		WithModelClient(client).
		WithConfig(cfg.LoopConfig(model)).
		WithTools(reg).
		WithPlans(env.Plans).
		WithSnapshots(snapshot.NewOS(env.RepoRoot)).
		WithSystemPrompt(system).
		WithEventHandler(engine.NewLogHandler(env.Logger))

	var events *protocol.Writer
	if runFlags.jsonEvents {
		events = protocol.NewWriter(os.Stdout, runID)
		builder.WithEventHandler(events)
	} else {
		builder.WithEventHandler(term)
	}
	agent, err := builder.Build()
	if err != nil {
		return err
	}
	if cfg.StepMode {
		if err := agent.SetStepMode(true); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go handleInterrupts(ctx, cancel, agent, env)

	srv := &protocol.Server{Controls: agent, Plans: env.Plans, Out: events, Logger: env.Logger}
	if runFlags.controlStdin {
		go func() {
			if err := srv.Serve(ctx, os.Stdin); err != nil && ctx.Err() == nil {
				env.Logger.Warn("control stream ended", "error", err)
			}
		}()
	} else {
		go runConsole(ctx, os.Stdin, srv, env.Plans, term)
	}

	ap := &approver{reg: env.Plans, auto: runFlags.autoApprove, announce: term.announcePlan}
	if events != nil {
		ap.announce = announceJSON(events, runID)
	}
	if !ap.auto {
		if w, err := plans.WatchFile(cfg.PlansDBPath()); err != nil {
			env.Logger.Warn("plan watcher unavailable, polling instead", "error", err)
		} else {
			defer w.Close()
			ap.notifier = w
		}
	}

	res := agent.RunUntilSettled(ctx, prompt, ap)
	if events == nil {
		term.summary(res, agent.ModifiedFiles())
	}
	record(cmd.Context(), env, runID, prompt, res, agent.ModifiedFiles(), client, model)

	if !res.Success {
		if res.Err != nil {
			return fmt.Errorf("run stopped (%s): %w", res.StopReason, res.Err)
		}
		return fmt.Errorf("run stopped: %s", res.StopReason)
	}
	return nil
}

// handleInterrupts aborts with rollback on the first signal and cancels
// everything on the second.
func handleInterrupts(ctx context.Context, cancel context.CancelFunc, agent *engine.Agent, env *runtimeEnv) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
	case <-ctx.Done():
		return
	}
	env.Logger.Warn("interrupted: aborting and rolling back, interrupt again to quit immediately")
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()
	if _, err := agent.Abort(ctx, true); err != nil {
		env.Logger.Error("abort failed", "error", err)
	}
}

// record persists the run to the session store. Failures are logged; the
// run's own outcome stands.
func record(ctx context.Context, env *runtimeEnv, runID, prompt string, res engine.AgentResult, modified []string, client engine.ModelClient, model string) {
	run := session.NewRun(env.RepoRoot, prompt, res, modified)
	run.ID = runID
	run.Title = titleFromPrompt(prompt)
	if runFlags.summarize && len(run.History) > 0 {
		s := session.NewSummarizer(client, model)
		if title, err := s.GenerateTitle(ctx, run.Transcript()); err != nil {
			env.Logger.Warn("could not title run", "error", err)
		} else if title != "" {
			run.Title = title
		}
		if summary, err := s.GenerateSummary(ctx, run.Transcript()); err != nil {
			env.Logger.Warn("could not summarize run", "error", err)
		} else {
			run.Summary = summary
		}
	}
	if err := session.NewStore(env.Config.SessionsDir()).Save(run); err != nil {
		env.Logger.Error("failed to record run", "run", runID, "error", err)
		return
	}
	env.Logger.Debug("run recorded", "run", runID)
}

func titleFromPrompt(prompt string) string {
	title := firstLine(strings.TrimSpace(prompt))
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60]) + "..."
	}
	return title
}
