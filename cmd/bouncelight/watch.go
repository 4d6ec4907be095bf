package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"bouncelight/internal/strip"
)

var watchModeStyle = lipgloss.NewStyle().Bold(true)

// runWatch follows a daemon's state websocket and prints what it sees until
// ctx is canceled or the server goes away.
func runWatch(ctx context.Context, wsURL string, frames bool, out io.Writer, logger *slog.Logger) error {
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	logger.Info("connecting", "url", wsURL)
	conn, _, err := d.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := printWatchMessage(out, msg, frames); err != nil {
			logger.Warn("bad message", "error", err)
		}
	}
}

// printWatchMessage renders one envelope. Frames are printed only when asked.
func printWatchMessage(out io.Writer, msg []byte, frames bool) error {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}
	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000")
	}

	switch env.Type {
	case "state_init", "frame":
		if env.Type == "frame" && !frames {
			return nil
		}
		var d wsFrameData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return err
		}
		f, err := frameFromData(d)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s %-10s %s  %-10s pos=%.2f speed=%.5f\n",
			ts, env.Type, renderStrip(f), watchModeStyle.Render(d.Mode.String()), d.Position, d.Speed)
		return err

	case "mode_changed":
		var d wsModeChangedData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return err
		}
		to := watchModeStyle.Render(d.To.String())
		if style, ok := simModeStyles[d.To]; ok {
			to = style.Render(d.To.String())
		}
		_, err := fmt.Fprintf(out, "%s %-10s %s -> %s at %dms pos=%.2f speed=%.5f\n",
			ts, env.Type, d.From, to, d.AtMS, d.Position, d.Speed)
		return err

	default:
		return errors.New("unknown message type " + env.Type)
	}
}

// frameFromData rebuilds a frame from its "#rrggbb" pixel strings.
func frameFromData(d wsFrameData) (strip.Frame, error) {
	f := strip.Frame{Pixels: make([]strip.RGB, len(d.Pixels)), Brightness: d.Brightness}
	for i, s := range d.Pixels {
		c, err := strip.ParseRGB(s)
		if err != nil {
			return strip.Frame{}, fmt.Errorf("pixel %d: %w", i, err)
		}
		f.Pixels[i] = c
	}
	return f, nil
}
