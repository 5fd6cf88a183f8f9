// Package types provides shared type definitions used across the encoder.
package types

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of the encoder process.
type Status string

const (
	// StatusStopped indicates no encoder process is running.
	StatusStopped Status = "stopped"
	// StatusRunning indicates an encoder process has been launched.
	StatusRunning Status = "running"
	// StatusError is reserved for a future health-check integration. Nothing sets it.
	StatusError Status = "error"
)

// Shutdown settings.
const (
	StopTimeout  = 3 * time.Second // Time to wait for graceful exit before SIGKILL
	KillTimeout  = 2 * time.Second // Time to wait for exit after SIGKILL
	LogLimit     = 200             // Entries returned by a log query
	MaxLineBytes = 4096            // Longer output lines are truncated
)

// OutputTarget is a single destination the encoder writes to.
type OutputTarget struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ExitInfo describes how an encoder process terminated.
type ExitInfo struct {
	Code     int       `json:"code"`
	Signal   string    `json:"signal,omitzero"`
	Err      string    `json:"error,omitzero"`
	ExitedAt time.Time `json:"exited_at"`
}

// Abnormal reports whether the process did not exit cleanly.
func (e ExitInfo) Abnormal() bool {
	return e.Code != 0 || e.Signal != "" || e.Err != ""
}

// String renders the exit in the form used by lifecycle log lines.
func (e ExitInfo) String() string {
	switch {
	case e.Signal != "":
		return fmt.Sprintf("signal %s", e.Signal)
	case e.Code < 0 && e.Err != "":
		return fmt.Sprintf("error %s", e.Err)
	default:
		return fmt.Sprintf("code %d", e.Code)
	}
}

// ProcessStats contains resource usage of the running encoder process.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// EncoderInfo contains a detailed summary of the encoder's current state.
type EncoderInfo struct {
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitzero"`
	Uptime    string        `json:"uptime,omitzero"`
	Input     string        `json:"input,omitzero"`
	Output    string        `json:"output,omitzero"`
	Command   []string      `json:"command,omitempty"`
	LastExit  *ExitInfo     `json:"last_exit,omitempty"`
	LastError string        `json:"last_error,omitzero"`
	Stats     *ProcessStats `json:"stats,omitempty"`
}

// LogEntry is a single captured log line.
type LogEntry struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

// ExitEvent is delivered to notifiers when an encoder process exits abnormally.
type ExitEvent struct {
	Exit      ExitInfo `json:"exit"`
	Input     string   `json:"input"`
	Output    string   `json:"output"`
	LastError string   `json:"last_error,omitzero"`
	Uptime    string   `json:"uptime"`
}

// EventLogEntry is one JSON line in the notification event log.
type EventLogEntry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	ExitCode  int    `json:"exit_code,omitempty"`
	Signal    string `json:"signal,omitempty"`
	Input     string `json:"input,omitempty"`
	Output    string `json:"output,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// WSTestResult is sent to the client after a notification test.
type WSTestResult struct {
	Type     string `json:"type"`
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// WSCommandResult is sent to the client after a lifecycle command.
type WSCommandResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
}

// WSEventLogResult is sent to the client in response to view_event_log.
type WSEventLogResult struct {
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Path    string          `json:"path,omitempty"`
	Entries []EventLogEntry `json:"entries,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// VersionInfo describes the running build and the latest published release.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
}
