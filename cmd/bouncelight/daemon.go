package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"bouncelight/internal/button"
	"bouncelight/internal/clock"
	"bouncelight/internal/journal"
	"bouncelight/internal/motion"
	"bouncelight/internal/strip"
)

// ============================================================================
// Tick loop
// ============================================================================
//
// One tick: sample clock, sample button, Step, Render, write the frame.
// Ticks run back to back; the state machine only ever sees elapsed time.
//
// The loop owns the motion.State. Other goroutines see it through:
//   - Snapshot values published after every tick (latest-wins, never blocks)
//   - Transition values published on every mode change (dropped if full)
//   - snapshotRequest round-trips for a coherent on-demand copy
//
// ============================================================================

// Snapshot is one tick's state together with the frame rendered from it.
type Snapshot struct {
	State motion.State `json:"state"`
	Frame strip.Frame  `json:"frame"`
}

// snapshotRequest asks the loop for its current Snapshot.
type snapshotRequest struct {
	Reply chan<- Snapshot
}

type tickLoopConfig struct {
	Clock    clock.Clock
	Button   button.Source
	Renderer strip.Renderer
	Motion   motion.Config
	Strip    strip.Config
	Logger   *slog.Logger

	Snapshots   chan Snapshot
	Transitions []chan<- journal.Transition
	Requests    <-chan snapshotRequest
}

type tickLoop struct {
	cfg tickLoopConfig

	state motion.State
	frame strip.Frame

	input  failureStreak
	render failureStreak

	// Ticks that completed a Step.
	ticks uint64
}

func newTickLoop(cfg tickLoopConfig) *tickLoop {
	if cfg.Renderer == nil {
		cfg.Renderer = strip.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &tickLoop{
		cfg:   cfg,
		state: motion.NewState(cfg.Clock.Now()),
	}
	l.frame = strip.Render(l.state, cfg.Strip)
	return l
}

// run ticks until ctx is canceled.
func (l *tickLoop) run(ctx context.Context) error {
	l.cfg.Logger.Info("tick loop starting",
		"length", l.cfg.Strip.Length,
		"acceleration", l.cfg.Motion.Acceleration,
		"terminal_velocity", l.cfg.Motion.TerminalVelocity,
		"explode_ms", uint32(l.cfg.Motion.ExplodeDuration),
	)
	for {
		select {
		case <-ctx.Done():
			l.cfg.Logger.Info("tick loop stopping (context canceled)", "ticks", l.ticks)
			return nil
		case req := <-l.cfg.Requests:
			l.reply(req)
		default:
		}
		l.tick()
	}
}

// tick performs one iteration. An input failure skips the rest of the tick
// so the state machine never sees a guessed button level.
func (l *tickLoop) tick() {
	now := l.cfg.Clock.Now()

	pressed, err := l.cfg.Button.Read()
	if err != nil {
		l.input.fail(l.cfg.Logger, "button read failed, skipping ticks", err)
		return
	}
	l.input.recover(l.cfg.Logger, "button read recovered")

	prev := l.state
	l.state = motion.Step(prev, now, pressed, l.cfg.Motion)
	l.ticks++

	if motion.Changed(prev, l.state) {
		l.cfg.Logger.Debug("mode changed",
			"from", prev.Mode,
			"to", l.state.Mode,
			"at_ms", uint32(now),
			"position", l.state.Position,
			"speed", l.state.Speed,
		)
		l.publishTransition(journal.Transition{
			From:       prev.Mode,
			To:         l.state.Mode,
			At:         now,
			Position:   l.state.Position,
			Speed:      l.state.Speed,
			RecordedAt: time.Now(),
		})
	}

	l.frame = strip.Render(l.state, l.cfg.Strip)
	if err := l.cfg.Renderer.Write(l.frame); err != nil {
		l.render.fail(l.cfg.Logger, "strip write failed", err)
	} else {
		l.render.recover(l.cfg.Logger, "strip write recovered")
	}

	l.publishSnapshot()
}

func (l *tickLoop) snapshot() Snapshot {
	return Snapshot{State: l.state, Frame: l.frame}
}

// publishSnapshot offers the latest snapshot, replacing a stale one that
// nobody has consumed yet.
func (l *tickLoop) publishSnapshot() {
	ch := l.cfg.Snapshots
	if ch == nil {
		return
	}
	snap := l.snapshot()
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (l *tickLoop) publishTransition(tr journal.Transition) {
	for _, ch := range l.cfg.Transitions {
		select {
		case ch <- tr:
		default:
			l.cfg.Logger.Warn("transition queue full, dropping", "from", tr.From, "to", tr.To)
		}
	}
}

func (l *tickLoop) reply(req snapshotRequest) {
	if req.Reply == nil {
		return
	}
	select {
	case req.Reply <- l.snapshot():
	default:
		l.cfg.Logger.Warn("snapshot reply channel full, dropping")
	}
}

// failureStreak logs the first failure of a run and a single line when the
// run ends, so a dead device does not flood the log at tick rate.
type failureStreak struct {
	count uint64
}

func (f *failureStreak) fail(logger *slog.Logger, msg string, err error) {
	f.count++
	if f.count == 1 {
		logger.Warn(msg, "error", err)
	}
}

func (f *failureStreak) recover(logger *slog.Logger, msg string) {
	if f.count == 0 {
		return
	}
	logger.Info(msg, "failed_ticks", f.count)
	f.count = 0
}
