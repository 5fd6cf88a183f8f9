//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal returns the signal used to ask the encoder to exit.
// On Unix this is SIGTERM, which FFmpeg handles by finalizing the output.
func GracefulSignal() os.Signal {
	return syscall.SIGTERM
}

// SignalName returns a short name such as "terminated" for a signal.
func SignalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		return s.String()
	}
	return sig.String()
}
