package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/lavacast/lavacast/internal/observability"
)

const (
	// gracefulWait is how long Stop waits after SIGTERM before SIGKILL.
	gracefulWait = 3 * time.Second
	// termWait is how long Stop waits after SIGKILL before abandoning the
	// process to the reaper goroutine.
	termWait = 500 * time.Millisecond
)

// SpawnOptions controls how a child process's output is consumed.
type SpawnOptions struct {
	// OnStdoutLine receives each stdout line as it arrives. Nil discards
	// stdout.
	OnStdoutLine func(line string)
	// OnStderrLine receives each stderr line. Nil discards stderr.
	OnStderrLine func(line string)
	// Stdin, when non-nil, is connected to the child's stdin.
	Stdin io.Reader
}

// Process is a supervised ffmpeg child process.
type Process struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	done    chan struct{}
	waitErr error

	mu      sync.Mutex
	stopped bool
}

// Runner spawns supervised ffmpeg processes.
type Runner struct {
	binary string
	logger *slog.Logger
}

// NewRunner creates a Runner for the given ffmpeg binary.
func NewRunner(binary string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		binary: binary,
		logger: observability.WithComponent(logger, "ffmpeg"),
	}
}

// Binary returns the ffmpeg path this runner invokes.
func (r *Runner) Binary() string {
	return r.binary
}

// Spawn starts an ffmpeg process with the given arguments. Output readers
// run until the process exits; Wait or Done observes completion.
func (r *Runner) Spawn(ctx context.Context, args []string, opts SpawnOptions) (*Process, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdin = opts.Stdin

	var readers sync.WaitGroup

	if err := attachLineReader(cmd.StdoutPipe, opts.OnStdoutLine, &readers); err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := attachLineReader(cmd.StderrPipe, opts.OnStderrLine, &readers); err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		logger: r.logger.With("pid", cmd.Process.Pid),
		done:   make(chan struct{}),
	}
	p.logger.Debug("process started", "args", args)

	go func() {
		readers.Wait()
		p.waitErr = cmd.Wait()
		close(p.done)
		p.logger.Debug("process exited", "error", p.waitErr)
	}()

	return p, nil
}

// attachLineReader wires a pipe to a per-line callback. A nil callback
// leaves the pipe unattached so the output goes to /dev/null.
func attachLineReader(pipe func() (io.ReadCloser, error), fn func(string), wg *sync.WaitGroup) error {
	if fn == nil {
		return nil
	}
	rc, err := pipe()
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			fn(scanner.Text())
		}
	}()
	return nil
}

// Pid returns the child process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done returns a channel closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits and returns its wait error.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Running reports whether the process has not yet exited.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop terminates the process, escalating from a graceful wait through
// SIGTERM to SIGKILL. It is safe to call multiple times.
func (p *Process) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.stopped = true
	p.mu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}

	// Ask nicely first. ffmpeg flushes its muxer on SIGTERM.
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.logger.Debug("SIGTERM failed", "error", err)
	}

	select {
	case <-p.done:
		return
	case <-time.After(gracefulWait):
	}

	p.logger.Warn("process did not exit after SIGTERM, sending SIGKILL")
	if err := p.cmd.Process.Kill(); err != nil {
		p.logger.Debug("SIGKILL failed", "error", err)
	}

	select {
	case <-p.done:
	case <-time.After(termWait):
		// Reaping continues in the Wait goroutine.
		p.logger.Warn("process still running after SIGKILL, abandoning")
	}
}
