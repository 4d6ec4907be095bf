package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bouncelight/internal/button"
	"bouncelight/internal/motion"
)

// startIPC runs an IPC server on a temporary socket and returns its path.
func startIPC(t *testing.T, h *ipcHandler) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "bl")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "ipc.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, socket, h) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("runIPCServer: %v", err)
			}
		case <-time.After(time.Second):
			t.Errorf("IPC server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, "socket not created")
	return socket
}

func TestIPC_VirtualButton(t *testing.T) {
	latch := &button.Latch{}
	socket := startIPC(t, &ipcHandler{latch: latch, logger: slog.Default()})

	steps := []struct {
		req  string
		want bool
	}{
		{ipcPress, true},
		{ipcPress, true},
		{ipcRelease, false},
		{ipcToggle, true},
		{ipcToggle, false},
	}
	for _, s := range steps {
		resp, err := SendIPCRequest(socket, s.req)
		if err != nil {
			t.Fatalf("%s: %v", s.req, err)
		}
		if resp.Pressed == nil || *resp.Pressed != s.want {
			t.Fatalf("%s: pressed = %v, want %v", s.req, resp.Pressed, s.want)
		}
		if got, _ := latch.Read(); got != s.want {
			t.Fatalf("%s: latch = %v, want %v", s.req, got, s.want)
		}
	}
}

func TestIPC_StatusIncludesSnapshot(t *testing.T) {
	requests := make(chan snapshotRequest)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-requests:
				s := motion.NewState(77)
				s.Mode = motion.Friction
				req.Reply <- Snapshot{State: s}
			}
		}
	}()

	latch := &button.Latch{}
	latch.Set(true)
	socket := startIPC(t, &ipcHandler{latch: latch, requests: requests, logger: slog.Default()})

	resp, err := SendIPCRequest(socket, ipcStatus)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Pressed == nil || !*resp.Pressed {
		t.Fatalf("pressed = %v, want true", resp.Pressed)
	}
	if resp.Snapshot == nil || resp.Snapshot.State.Mode != motion.Friction || resp.Snapshot.State.LastTime != 77 {
		t.Fatalf("snapshot = %+v", resp.Snapshot)
	}
}

func TestIPC_Errors(t *testing.T) {
	socket := startIPC(t, &ipcHandler{latch: &button.Latch{}, logger: slog.Default()})

	resp, err := SendIPCRequest(socket, "explode")
	if err == nil || resp.Status != "error" || !strings.Contains(resp.Error, "unknown request type") {
		t.Fatalf("unknown type: resp=%+v err=%v", resp, err)
	}

	// A bad line does not end the session.
	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("not json\n{\"type\":\"press\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	sc := bufio.NewScanner(conn)
	var got []IPCResponse
	for len(got) < 2 && sc.Scan() {
		var r IPCResponse
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[0].Status != "error" || got[1].Status != "ok" {
		t.Fatalf("responses = %+v", got)
	}
}

func TestSendIPCRequest_NoDaemon(t *testing.T) {
	if _, err := SendIPCRequest(filepath.Join(t.TempDir(), "absent.sock"), ipcPress); err == nil {
		t.Fatalf("expected connection error")
	}
}
