package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"bouncelight/internal/button"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server exposes a virtual button and a status query.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "press"|"release"|"toggle"|"status"}
//   - Server responds: {"status": "ok", "pressed": true, ...}
//     or {"status": "error", "error": "msg"}
// ============================================================================

// IPC request types.
const (
	ipcPress   = "press"
	ipcRelease = "release"
	ipcToggle  = "toggle"
	ipcStatus  = "status"
)

// IPCRequest is one line sent by a client.
type IPCRequest struct {
	Type string `json:"type"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status   string    `json:"status"`            // "ok" or "error"
	Error    string    `json:"error,omitempty"`   // error message if status == "error"
	Pressed  *bool     `json:"pressed,omitempty"` // virtual button level after the request
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// ipcHandler applies requests to the virtual button. Requests may be nil,
// in which case status replies carry only the button level.
type ipcHandler struct {
	latch    *button.Latch
	requests chan<- snapshotRequest
	logger   *slog.Logger
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, h *ipcHandler) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	h.logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				h.logger.Debug("IPC listener closed")
				return nil
			}
			h.logger.Error("IPC accept error", "error", err)
			continue
		}
		go h.serveConn(ctx, conn)
	}
}

func (h *ipcHandler) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		h.logger.Debug("IPC received", "line", string(line))

		var req IPCRequest
		var resp IPCResponse
		if err := json.Unmarshal(line, &req); err != nil {
			resp = IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
		} else {
			resp = h.handle(ctx, req)
		}

		if err := encoder.Encode(resp); err != nil {
			h.logger.Error("IPC failed to send response", "error", err)
			return
		}
	}
}

func (h *ipcHandler) handle(ctx context.Context, req IPCRequest) IPCResponse {
	var pressed bool
	switch req.Type {
	case ipcPress:
		h.latch.Set(true)
		pressed = true
	case ipcRelease:
		h.latch.Set(false)
	case ipcToggle:
		pressed = h.latch.Toggle()
	case ipcStatus:
		pressed, _ = h.latch.Read()
		resp := IPCResponse{Status: "ok", Pressed: &pressed}
		if snap, err := h.requestSnapshot(ctx); err != nil {
			h.logger.Warn("IPC snapshot request failed", "error", err)
		} else if snap != nil {
			resp.Snapshot = snap
		}
		return resp
	default:
		return IPCResponse{Status: "error", Error: fmt.Sprintf("unknown request type: %q", req.Type)}
	}
	h.logger.Debug("virtual button", "request", req.Type, "pressed", pressed)
	return IPCResponse{Status: "ok", Pressed: &pressed}
}

// requestSnapshot round-trips through the tick loop. A nil snapshot with a nil
// error means no loop is attached.
func (h *ipcHandler) requestSnapshot(ctx context.Context) (*Snapshot, error) {
	if h.requests == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	reply := make(chan Snapshot, 1)
	select {
	case h.requests <- snapshotRequest{Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snap := <-reply:
		return &snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ============================================================================
// IPC Client
// ============================================================================

// SendIPCRequest sends one request to the daemon and returns its response.
func SendIPCRequest(socketPath, reqType string) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	if err := json.NewEncoder(conn).Encode(IPCRequest{Type: reqType}); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}
