package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

// Event names written to the event log and sent to webhooks.
const (
	EventEncoderExited = "encoder_exited"
	EventTest          = "test"
)

// LogExit records an unexpected encoder exit.
func LogExit(logPath string, event types.ExitEvent) error {
	return appendLogEntry(logPath, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     EventEncoderExited,
		ExitCode:  event.Exit.Code,
		Signal:    event.Exit.Signal,
		Input:     util.RedactURL(event.Input),
		Output:    util.RedactURL(event.Output),
		LastError: event.LastError,
	})
}

// WriteTestLog writes a test entry to verify log file configuration.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, types.EventLogEntry{
		Timestamp: util.RFC3339Now(),
		Event:     EventTest,
	})
}

// appendLogEntry appends a JSON log entry to the file.
func appendLogEntry(logPath string, entry types.EventLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}
