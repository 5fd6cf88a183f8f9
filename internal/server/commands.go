package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
)

// maxEventLogEntries is the number of event log entries returned to clients.
const maxEventLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// jsonWriter is the write side of a WebSocket connection.
type jsonWriter interface {
	WriteJSON(v any) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	enc          Encoder
	eventLogPath string
	testTriggers map[string]func() error
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(enc Encoder, eventLogPath string, testTriggers map[string]func() error) *CommandHandler {
	return &CommandHandler{
		enc:          enc,
		eventLogPath: eventLogPath,
		testTriggers: testTriggers,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Lifecycle commands run synchronously so they apply in the order received.
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand, w jsonWriter, triggerStatusUpdate func()) {
	switch cmd.Type {
	case "start", "stop", "restart":
		h.handleLifecycle(ctx, cmd, w)
	case "test_webhook", "test_log", "test_email":
		h.handleTest(w, cmd.Type)
	case "view_event_log":
		h.handleViewEventLog(w)
	default:
		slog.Warn("unknown WebSocket command type", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

func (h *CommandHandler) handleLifecycle(ctx context.Context, cmd WSCommand, w jsonWriter) {
	var err error

	switch cmd.Type {
	case "stop":
		h.enc.Stop()
	default:
		var params EncoderParams
		if len(cmd.Data) > 0 {
			if jsonErr := json.Unmarshal(cmd.Data, &params); jsonErr != nil {
				err = fmt.Errorf("invalid command data: %w", jsonErr)
			}
		}
		if err == nil {
			err = params.validate()
		}
		if err == nil {
			if cmd.Type == "start" {
				err = h.enc.Start(params.InputURL, params.Outputs)
			} else {
				// A client that disconnects mid-restart must not leave the
				// encoder stopped.
				err = h.enc.Restart(context.WithoutCancel(ctx), params.InputURL, params.Outputs)
			}
		}
	}

	result := types.WSCommandResult{
		Type:    "command_result",
		Command: cmd.Type,
		Success: err == nil,
		Status:  h.enc.Status(),
	}
	if err != nil {
		slog.Warn("command failed", "command", cmd.Type, "error", err)
		result.Error = err.Error()
	}

	if wsErr := w.WriteJSON(result); wsErr != nil {
		slog.Error("failed to send command response", "command", cmd.Type, "error", wsErr)
	}
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(w jsonWriter, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")
	trigger, ok := h.testTriggers[testType]
	if !ok {
		slog.Warn("unknown test type", "command", testCmd)
		return
	}

	go func() {
		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := trigger(); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		if wsErr := w.WriteJSON(result); wsErr != nil {
			slog.Error("failed to send test response", "command", testCmd, "error", wsErr)
		}
	}()
}

// handleViewEventLog sends the newest event log entries to the client.
func (h *CommandHandler) handleViewEventLog(w jsonWriter) {
	result := types.WSEventLogResult{
		Type:    "event_log_result",
		Success: true,
	}

	if h.eventLogPath == "" {
		result.Success = false
		result.Error = "Log file path not configured"
	} else if entries, err := readEventLog(h.eventLogPath, maxEventLogEntries); err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		result.Entries = entries
		result.Path = h.eventLogPath
	}

	if wsErr := w.WriteJSON(result); wsErr != nil {
		slog.Error("failed to send event log response", "error", wsErr)
	}
}

// readEventLog reads the last maxEntries entries from the event log, newest first.
func readEventLog(logPath string, maxEntries int) ([]types.EventLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.EventLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []types.EventLogEntry{}, nil
	}
	lines := strings.Split(trimmed, "\n")
	lines = lines[max(0, len(lines)-maxEntries):]

	entries := make([]types.EventLogEntry, 0, len(lines))
	for _, line := range lines {
		var entry types.EventLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	slices.Reverse(entries)

	return entries, nil
}
