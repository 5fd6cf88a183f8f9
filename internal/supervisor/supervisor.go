// Package supervisor manages the lifecycle of a single FFmpeg encoder process.
package supervisor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-videoencoder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

var (
	// ErrAlreadyRunning is returned by Start while a process is held.
	ErrAlreadyRunning = errors.New("encoder already running")
	// ErrNoOutput is returned when no usable output target was given.
	ErrNoOutput = errors.New("no output target")
	// ErrLaunchFailed wraps the operating system error of a failed launch.
	ErrLaunchFailed = errors.New("failed to launch encoder")
	// ErrExitTimeout is returned when a stopped process did not exit in time.
	ErrExitTimeout = errors.New("encoder did not exit")
)

// Options configures a Supervisor. Zero values fall back to defaults.
type Options struct {
	Preset      ffmpeg.Preset
	Launcher    Launcher
	LogCapacity int
	StopTimeout time.Duration // wait after the graceful signal before killing
	KillTimeout time.Duration // wait after killing before giving up

	// OnExit is called from the exit watcher when a process that was not
	// stopped manually exits abnormally.
	OnExit func(types.ExitEvent)
	// Stats samples resource usage for Info.
	Stats func(pid int) *types.ProcessStats
	Now   func() time.Time
}

// run is one launched process. Exits are matched to runs, so a late exit of
// a process that was already stopped never touches a newer run.
type run struct {
	proc      Process
	input     string
	output    string
	args      []string
	startedAt time.Time
	done      chan struct{} // closed once the exit has been recorded
}

// Supervisor owns at most one encoder process at a time.
type Supervisor struct {
	opts Options
	logs *LogBuffer

	mu        sync.Mutex
	current   *run
	status    types.Status
	lastExit  *types.ExitInfo
	lastError string
}

// New creates a Supervisor in the stopped state.
func New(opts Options) *Supervisor {
	if opts.Launcher == nil {
		opts.Launcher = ExecLauncher{}
	}
	opts.LogCapacity = cmp.Or(opts.LogCapacity, types.LogLimit)
	opts.StopTimeout = cmp.Or(opts.StopTimeout, types.StopTimeout)
	opts.KillTimeout = cmp.Or(opts.KillTimeout, types.KillTimeout)
	if opts.Stats == nil {
		opts.Stats = processStats
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Supervisor{
		opts:   opts,
		logs:   NewLogBuffer(max(opts.LogCapacity, types.LogLimit)),
		status: types.StatusStopped,
	}
}

// Start launches the encoder for input, writing to the first output target.
func (s *Supervisor) Start(input string, outputs []types.OutputTarget) error {
	if len(outputs) == 0 || outputs[0].URL == "" {
		return ErrNoOutput
	}
	if len(outputs) > 1 {
		slog.Warn("only the first output target is used", "targets", len(outputs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return ErrAlreadyRunning
	}

	r := &run{
		input:  input,
		output: outputs[0].URL,
		done:   make(chan struct{}),
	}
	r.args = s.opts.Preset.BuildArgs(r.input, r.output)

	// Output callbacks block on s.mu until the start line below is written.
	proc, err := s.opts.Launcher.Launch(s.opts.Preset.BinaryPath(), r.args, s.appendLine)
	if err != nil {
		slog.Error("encoder launch failed", "binary", s.opts.Preset.BinaryPath(), "error", err)
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	r.proc = proc
	r.startedAt = s.opts.Now()
	s.current = r
	s.status = types.StatusRunning
	s.lastError = ""
	s.lifecycle("Encoder started")
	slog.Info("encoder started", "pid", proc.Pid(), "input", r.input, "output", r.output)

	go s.watch(r)
	return nil
}

// Stop asks the running encoder to exit and returns immediately. The
// supervisor reports stopped right away; a process that ignores the
// graceful signal is killed after the stop timeout. Stop is a no-op when
// nothing is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	r := s.detach()
	s.mu.Unlock()

	if r != nil {
		s.terminate(r)
	}
}

// Restart stops the running encoder, waits for it to exit, and starts a new
// one with the given parameters. The restart is logged before waiting.
func (s *Supervisor) Restart(ctx context.Context, input string, outputs []types.OutputTarget) error {
	s.mu.Lock()
	r := s.detach()
	s.lifecycle("Encoder restarted")
	s.mu.Unlock()

	if r != nil {
		s.terminate(r)
		if err := s.awaitExit(ctx, r); err != nil {
			return err
		}
	}
	return s.Start(input, outputs)
}

// Shutdown stops the encoder and waits for the process to exit. A process
// still alive when ctx is done is killed before Shutdown returns.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	r := s.detach()
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	s.terminate(r)
	if err := s.awaitExit(ctx, r); err != nil {
		slog.Warn("encoder did not exit before shutdown deadline, killing", "pid", r.proc.Pid(), "error", err)
		s.kill(r)
		return err
	}
	return nil
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Logs returns the most recent log lines, oldest first.
func (s *Supervisor) Logs() []string {
	return s.logs.Lines(types.LogLimit)
}

// LogsSince returns the log entries appended after cursor.
func (s *Supervisor) LogsSince(cursor string) []types.LogEntry {
	return s.logs.Since(cursor)
}

// RecentLogs returns up to limit of the most recent log entries.
func (s *Supervisor) RecentLogs(limit int) []types.LogEntry {
	return s.logs.Entries(limit)
}

// Info returns a detailed snapshot of the encoder.
func (s *Supervisor) Info() types.EncoderInfo {
	s.mu.Lock()
	info := types.EncoderInfo{
		Status:    s.status,
		LastError: s.lastError,
	}
	if s.lastExit != nil {
		exit := *s.lastExit
		info.LastExit = &exit
	}
	r := s.current
	if r != nil {
		info.PID = r.proc.Pid()
		info.Uptime = util.FormatUptime(s.opts.Now().Sub(r.startedAt))
		info.Input = r.input
		info.Output = r.output
		info.Command = append([]string{s.opts.Preset.BinaryPath()}, r.args...)
	}
	s.mu.Unlock()

	if r != nil {
		info.Stats = s.opts.Stats(info.PID)
	}
	return info
}

// detach releases the current run and marks the supervisor stopped.
// Must be called with s.mu held.
func (s *Supervisor) detach() *run {
	r := s.current
	if r == nil {
		return nil
	}
	s.current = nil
	s.status = types.StatusStopped
	s.lifecycle("Encoder stopped manually")
	slog.Info("encoder stopping", "pid", r.proc.Pid())
	return r
}

// terminate sends the graceful signal and schedules a kill for a process
// that outlives the stop timeout.
func (s *Supervisor) terminate(r *run) {
	if err := r.proc.Signal(util.GracefulSignal()); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return
		}
		slog.Warn("graceful signal failed, killing encoder", "pid", r.proc.Pid(), "error", err)
		s.kill(r)
		return
	}

	go func() {
		select {
		case <-r.done:
		case <-time.After(s.opts.StopTimeout):
			slog.Warn("encoder did not stop in time, forcing kill", "pid", r.proc.Pid())
			s.kill(r)
		}
	}()
}

func (s *Supervisor) kill(r *run) {
	if err := r.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Error("failed to kill encoder", "pid", r.proc.Pid(), "error", err)
	}
}

// awaitExit blocks until r has exited, ctx is done, or the stop and kill
// timeouts have both elapsed.
func (s *Supervisor) awaitExit(ctx context.Context, r *run) error {
	timer := time.NewTimer(s.opts.StopTimeout + s.opts.KillTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: pid %d", ErrExitTimeout, r.proc.Pid())
	}
}

// watch waits for r to exit and records the outcome.
func (s *Supervisor) watch(r *run) {
	exit := r.proc.Wait()

	var event *types.ExitEvent

	s.mu.Lock()
	if s.current == r {
		s.current = nil
		s.status = types.StatusStopped
		s.lastExit = &exit
		if exit.Abnormal() {
			s.lastError = ffmpeg.ExtractLastError(s.logs.Lines(types.LogLimit))
			event = &types.ExitEvent{
				Exit:      exit,
				Input:     r.input,
				Output:    r.output,
				LastError: s.lastError,
				Uptime:    util.FormatUptime(exit.ExitedAt.Sub(r.startedAt)),
			}
		}
		s.lifecycle("Encoder stopped with " + exit.String())
	} else {
		s.lifecycle("Encoder process exited with " + exit.String())
	}
	s.mu.Unlock()
	close(r.done)

	if event != nil {
		slog.Warn("encoder exited unexpectedly", "exit", exit.String(), "last_error", event.LastError)
		if s.opts.OnExit != nil {
			s.opts.OnExit(*event)
		}
	} else {
		slog.Info("encoder exited", "exit", exit.String())
	}
}

// appendLine stores one line of process output.
func (s *Supervisor) appendLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.Append(line)
}

// lifecycle appends a timestamped lifecycle line. Must be called with s.mu held.
func (s *Supervisor) lifecycle(msg string) {
	s.logs.Append(fmt.Sprintf("[%s] %s", util.ISOTimestamp(s.opts.Now()), msg))
}
