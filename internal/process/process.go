package process

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/watchnode/internal/logging"
)

// ExitKilled is returned by Run when the child ignored SIGINT and was killed.
const ExitKilled = 137

// LineHandler receives every output line of the child.
type LineHandler interface {
	HandleLine(stream, line string)
}

// LogParser extracts a level from a line of child output.
type LogParser func(line string) (level, msg string)

// StdoutConsumer takes over the child's stdout. It should read until EOF;
// whatever it leaves is discarded.
type StdoutConsumer func(r io.Reader)

// Process runs one child process at a time and stops it with SIGINT,
// then SIGKILL to its process group once the grace period passes.
type Process struct {
	id     string
	args   []string
	logger logging.Logger

	outputLogger logging.Logger
	parse        LogParser
	stdout       StdoutConsumer
	lines        LineHandler
	grace        time.Duration
	killWait     time.Duration

	mu       sync.Mutex
	cmd      *exec.Cmd
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Process.
type Option func(*Process)

// WithOutputLog logs child output to logger at the level parser extracts.
func WithOutputLog(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.outputLogger = logger
		p.parse = parser
	}
}

// WithStdout hands stdout to consumer instead of logging it.
func WithStdout(consumer StdoutConsumer) Option {
	return func(p *Process) { p.stdout = consumer }
}

// WithLineHandler passes every logged line to h as well.
func WithLineHandler(h LineHandler) Option {
	return func(p *Process) { p.lines = h }
}

// WithStopTimeout sets how long Run waits after SIGINT before killing.
// Default is 5s.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Process) { p.grace = d }
}

// New creates a process for args, where args[0] is the executable.
func New(id string, args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:       id,
		args:     args,
		logger:   logger,
		grace:    5 * time.Second,
		killWait: 5 * time.Second,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.outputLogger == nil {
		p.outputLogger = logger
	}
	return p
}

// Args returns the child's argv.
func (p *Process) Args() []string {
	return p.args
}

// Stop asks a running or future Run to end the child. It does not wait.
func (p *Process) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// PID returns the child's pid, 0 before it starts.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Run starts the child and blocks until it exits, ctx is done or Stop is
// called. It returns the exit code; the error is set only when the child
// could not be started. Run after Stop returns immediately.
func (p *Process) Run(ctx context.Context) (int, error) {
	select {
	case <-p.stop:
		return 0, nil
	case <-ctx.Done():
		return 0, nil
	default:
	}

	exited, err := p.start()
	if err != nil {
		return -1, err
	}

	select {
	case err := <-exited:
		code := exitCode(err)
		p.logger.Debug("Process exited", "id", p.id, "exit_code", code)
		return code, nil
	case <-ctx.Done():
	case <-p.stop:
	}

	p.signal(syscall.SIGINT)
	select {
	case err := <-exited:
		return exitCode(err), nil
	case <-time.After(p.grace):
	}

	p.logger.Warn("Process ignored SIGINT, killing", "id", p.id, "timeout", p.grace)
	p.killGroup()
	select {
	case <-exited:
	case <-time.After(p.killWait):
		p.logger.Error("Process did not exit after SIGKILL", "id", p.id)
	}
	return ExitKilled, nil
}

// start launches the child. The returned channel yields cmd.Wait's error
// once both output streams are drained.
func (p *Process) start() (<-chan error, error) {
	if len(p.args) == 0 || p.args[0] == "" {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "binary", p.args[0], "error", err)
		return nil, err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	p.logger.Debug("Process started", "id", p.id, "pid", cmd.Process.Pid)

	var drained sync.WaitGroup
	drained.Add(2)
	go func() {
		defer drained.Done()
		if p.stdout == nil {
			p.logLines(stdout, "stdout")
			return
		}
		p.stdout(stdout)
		_, _ = io.Copy(io.Discard, stdout)
	}()
	go func() {
		defer drained.Done()
		p.logLines(stderr, "stderr")
	}()

	exited := make(chan error, 1)
	go func() {
		// Wait closes the pipes, so the readers finish first.
		drained.Wait()
		exited <- cmd.Wait()
	}()
	return exited, nil
}

func (p *Process) signal(sig os.Signal) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to signal process", "id", p.id, "signal", sig, "error", err)
	}
}

// killGroup kills the child's process group, falling back to the child alone.
func (p *Process) killGroup() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}
}

func (p *Process) logLines(r io.Reader, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if p.lines != nil {
			p.lines.HandleLine(stream, line)
		}

		level, msg := "info", line
		if p.parse != nil {
			level, msg = p.parse(line)
		}
		switch level {
		case "panic", "fatal", "error":
			p.outputLogger.Error(msg, "id", p.id)
		case "warning":
			p.outputLogger.Warn(msg, "id", p.id)
		case "debug", "trace", "verbose":
			p.outputLogger.Debug(msg, "id", p.id)
		default:
			p.outputLogger.Info(msg, "id", p.id)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("Error reading output", "id", p.id, "stream", stream, "error", err)
	}
}

// exitCode maps cmd.Wait's error to an exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
