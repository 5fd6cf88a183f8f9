package supervisor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
)

// Process is a launched encoder process.
type Process interface {
	// Pid returns the operating system process ID.
	Pid() int
	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
	// Kill terminates the process immediately.
	Kill() error
	// Wait blocks until the process has exited and all of its output has
	// been delivered, then describes the exit. It is called exactly once.
	Wait() types.ExitInfo
}

// Launcher starts encoder processes. onLine receives every non-empty line the
// process writes to stdout or stderr, from any goroutine, until Wait returns.
type Launcher interface {
	Launch(name string, args []string, onLine func(string)) (Process, error)
}

// ExecLauncher launches real operating system processes.
type ExecLauncher struct {
	// Env is appended to the inherited environment.
	Env []string
}

// Launch starts name with args and begins streaming its output to onLine.
func (l ExecLauncher) Launch(name string, args []string, onLine func(string)) (Process, error) {
	cmd := exec.Command(name, args...)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd}
	p.readers.Add(2)
	go p.stream(stdout, onLine)
	go p.stream(stderr, onLine)
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	readers sync.WaitGroup
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// Wait drains both pipes before reaping, as required by exec.Cmd.
func (p *execProcess) Wait() types.ExitInfo {
	p.readers.Wait()
	return exitInfo(p.cmd.Wait(), time.Now())
}

func (p *execProcess) stream(r io.Reader, onLine func(string)) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 2*types.MaxLineBytes)
	scanner.Split(splitLines)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), " \t"); line != "" {
			onLine(line)
		}
	}
	// Keep the pipe empty so the process never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, r)
}

// splitLines is a bufio.SplitFunc that breaks on \n or \r, so FFmpeg's
// carriage-return progress updates arrive as separate lines. Lines longer
// than MaxLineBytes are cut into chunks.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if len(data) >= types.MaxLineBytes {
		return types.MaxLineBytes, data[:types.MaxLineBytes], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// exitInfo converts the result of exec.Cmd.Wait into an ExitInfo.
func exitInfo(err error, at time.Time) types.ExitInfo {
	info := types.ExitInfo{ExitedAt: at}
	if err == nil {
		return info
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		info.Code = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			info.Signal = ws.Signal().String()
		}
		return info
	}

	info.Code = -1
	info.Err = err.Error()
	return info
}
