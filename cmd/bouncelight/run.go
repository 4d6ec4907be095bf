package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"bouncelight/internal/button"
	"bouncelight/internal/clock"
	"bouncelight/internal/journal"
	"bouncelight/internal/strip"
)

// buttonInput is an opened button source plus what it needs to keep running.
type buttonInput struct {
	source button.Source
	// run drives a background reader; nil when the source is polled directly.
	run    func(ctx context.Context) error
	closer io.Closer
}

// openButton opens the configured physical button. The virtual latch is
// always part of the result so IPC presses work next to real hardware.
func openButton(cfg ButtonConfig, latch *button.Latch) (buttonInput, error) {
	switch cfg.Source {
	case ButtonSourceEvdev:
		ev, err := button.OpenEvdev(ExpandPath(cfg.Device), uint16(cfg.KeyCode))
		if err != nil {
			return buttonInput{}, fmt.Errorf("open button: %w", err)
		}
		return buttonInput{source: button.Any{ev, latch}, run: ev.Run, closer: ev}, nil

	case ButtonSourceGPIO:
		g, err := button.OpenGPIO(ExpandPath(cfg.GPIOValuePath), cfg.ActiveLow)
		if err != nil {
			return buttonInput{}, fmt.Errorf("open button: %w", err)
		}
		return buttonInput{source: button.Any{g, latch}, closer: g}, nil

	case ButtonSourceIPC:
		return buttonInput{source: latch}, nil

	default:
		return buttonInput{}, fmt.Errorf("unknown button source %q", cfg.Source)
	}
}

// openDisplay opens the configured strip output.
func openDisplay(cfg DisplayConfig) (strip.Renderer, io.Closer, error) {
	switch cfg.Driver {
	case DisplayDriverSPI:
		dev, err := strip.OpenSPI(ExpandPath(cfg.Device), uint8(cfg.SPIMode), uint32(cfg.SpeedHz))
		if err != nil {
			return nil, nil, fmt.Errorf("open display: %w", err)
		}
		return strip.NewAPA102(dev), dev, nil
	case DisplayDriverNone:
		return strip.Discard{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown display driver %q", cfg.Driver)
	}
}

// runDaemon runs the light until ctx is canceled. Device open failures are
// fatal; failures after startup are logged and ridden out.
func runDaemon(ctx context.Context, cfg Config, logger *slog.Logger) error {
	latch := &button.Latch{}

	input, err := openButton(cfg.Button, latch)
	if err != nil {
		return err
	}
	if input.closer != nil {
		defer input.closer.Close()
	}

	renderer, display, err := openDisplay(cfg.Display)
	if err != nil {
		return err
	}
	if display != nil {
		defer display.Close()
		// Blank the strip on the way out.
		defer func() {
			if err := renderer.Write(strip.Frame{Pixels: make([]strip.RGB, cfg.Strip.Length)}); err != nil {
				logger.Warn("failed to blank strip", "error", err)
			}
		}()
	}

	requests := make(chan snapshotRequest, 8)
	loopCfg := tickLoopConfig{
		Clock:    clock.Monotonic{},
		Button:   input.source,
		Renderer: renderer,
		Motion:   cfg.ToMotionConfig(),
		Strip:    cfg.ToStripConfig(),
		Logger:   logger.With("component", "loop"),
		Requests: requests,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Journal.Enabled {
		store, err := journal.Open(ExpandPath(cfg.Journal.Path))
		if err != nil {
			return err
		}
		defer store.Close()

		transitions := make(chan journal.Transition, 64)
		loopCfg.Transitions = append(loopCfg.Transitions, transitions)
		g.Go(func() error {
			runRecorder(gctx, store, transitions, logger.With("component", "journal"))
			return nil
		})
		logger.Info("journal enabled", "path", ExpandPath(cfg.Journal.Path))
	}

	if cfg.StateWS.Enabled {
		wsLogger := logger.With("component", "state_ws")
		snapshots := make(chan Snapshot, 1)
		transitions := make(chan journal.Transition, 64)
		loopCfg.Snapshots = snapshots
		loopCfg.Transitions = append(loopCfg.Transitions, transitions)

		srv := NewServer(wsLogger, requests, ServerConfig{})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StateWS.Path)
		httpSrv := &http.Server{
			Addr:              cfg.StateWS.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			srv.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, srv.Hub(), snapshots, transitions, wsLogger)
			return nil
		})
		g.Go(func() error {
			wsLogger.Info("state websocket listening", "listen", cfg.StateWS.Listen, "path", cfg.StateWS.Path)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("state websocket server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if input.run != nil {
		g.Go(func() error {
			// A dead reader surfaces through Read as skipped ticks; the
			// daemon keeps serving IPC and the websocket.
			if err := input.run(gctx); err != nil {
				logger.Error("button reader stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return runIPCServer(gctx, ExpandPath(cfg.IPC.SocketPath), &ipcHandler{
			latch:    latch,
			requests: requests,
			logger:   logger.With("component", "ipc"),
		})
	})

	loop := newTickLoop(loopCfg)
	g.Go(func() error {
		return loop.run(gctx)
	})

	logger.Info("bouncelight running",
		"button", cfg.Button.Source,
		"display", cfg.Display.Driver,
		"length", cfg.Strip.Length,
		"ipc", cfg.IPC.SocketPath,
		"state_ws", cfg.StateWS.Enabled,
		"journal", cfg.Journal.Enabled,
	)

	return g.Wait()
}

// runSimulator drives the state machine from the keyboard and draws the
// strip in the terminal.
func runSimulator(ctx context.Context, cfg Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	latch := &button.Latch{}
	latest := &latestSnapshot{}
	snapshots := make(chan Snapshot, 1)

	loopCfg := tickLoopConfig{
		Clock:     clock.Monotonic{},
		Button:    latch,
		Renderer:  strip.Discard{},
		Motion:    cfg.ToMotionConfig(),
		Strip:     cfg.ToStripConfig(),
		Logger:    logger,
		Snapshots: snapshots,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Journal.Enabled {
		store, err := journal.Open(ExpandPath(cfg.Journal.Path))
		if err != nil {
			return err
		}
		defer store.Close()
		transitions := make(chan journal.Transition, 64)
		loopCfg.Transitions = append(loopCfg.Transitions, transitions)
		g.Go(func() error {
			runRecorder(gctx, store, transitions, logger)
			return nil
		})
	}

	loop := newTickLoop(loopCfg)
	g.Go(func() error {
		return loop.run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-snapshots:
				latest.Store(s)
			}
		}
	})

	p := tea.NewProgram(NewSimModel(latch, latest, cfg.Strip.Length),
		tea.WithAltScreen(),
		tea.WithContext(gctx),
	)
	_, err := p.Run()
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
