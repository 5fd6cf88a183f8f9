//go:build windows

package util

import (
	"errors"
	"os"
)

// ErrGracefulNotSupported indicates graceful shutdown is not supported.
var ErrGracefulNotSupported = errors.New("graceful signal not supported on Windows")

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal returns the signal used to ask the encoder to exit.
// Windows cannot deliver it to child processes; Signal returns an error and
// the supervisor falls back to Kill.
func GracefulSignal() os.Signal {
	return os.Interrupt
}

// SignalName returns a short name for a signal.
func SignalName(sig os.Signal) string {
	return sig.String()
}
