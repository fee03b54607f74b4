package protocol

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/tidwall/sjson"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/plans"
)

// Controls is the part of an agent a controlling process can drive.
type Controls interface {
	Pause() error
	Resume() error
	Step() error
	SetStepMode(enabled bool) error
	Abort(ctx context.Context, rollback bool) (engine.RollbackReport, error)
	State() engine.ExecutionState
	IsWaitingForStep() bool
	RollbackCount() int
}

// PlanDecider records a plan decision.
type PlanDecider interface {
	SetStatus(ctx context.Context, id string, status plans.Status) error
}

// Server reads commands from a stream and applies them to Controls.
// Replies are written through Out when it is set.
type Server struct {
	Controls Controls
	Plans    PlanDecider
	Out      *Writer
	Logger   *slog.Logger
}

// Serve consumes r until EOF or ctx is done. Malformed lines are reported
// and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "protocol")

	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			cmd, err := DecodeCommand(line)
			if err != nil {
				logger.Warn("invalid command", "error", err)
				s.reply(nil, err)
				continue
			}
			err = s.Apply(ctx, cmd)
			if err != nil {
				logger.Warn("command failed", "command", cmd.GetType(), "error", err)
			}
			s.reply(cmd, err)
		}
	}
}

// Apply executes a single command.
func (s *Server) Apply(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case PauseCommand:
		return s.Controls.Pause()
	case ResumeCommand:
		return s.Controls.Resume()
	case StepCommand:
		return s.Controls.Step()
	case StepModeCommand:
		return s.Controls.SetStepMode(c.Enabled)
	case AbortCommand:
		_, err := s.Controls.Abort(ctx, c.Rollback)
		return err
	case PlanDecisionCommand:
		if s.Plans == nil {
			return plans.ErrNotFound
		}
		status := plans.StatusRejected
		if c.Approved {
			status = plans.StatusApproved
		}
		return s.Plans.SetStatus(ctx, c.PlanID, status)
	case StatusCommand:
		return nil
	}
	return nil
}

func (s *Server) reply(cmd Command, err error) {
	if s.Out == nil {
		return
	}
	buf := []byte(`{"type":"ack"}`)
	if cmd != nil {
		buf, _ = sjson.SetBytes(buf, "command", string(cmd.GetType()))
	}
	buf, _ = sjson.SetBytes(buf, "ok", err == nil)
	if err != nil {
		buf, _ = sjson.SetBytes(buf, "error", err.Error())
	}
	if s.Controls != nil {
		buf, _ = sjson.SetBytes(buf, "state", string(s.Controls.State()))
		if _, ok := cmd.(StatusCommand); ok {
			buf, _ = sjson.SetBytes(buf, "waiting_for_step", s.Controls.IsWaitingForStep())
			buf, _ = sjson.SetBytes(buf, "rollback_actions", s.Controls.RollbackCount())
		}
	}
	s.Out.WriteRaw(buf)
}
