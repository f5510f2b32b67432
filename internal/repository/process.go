package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxStderr = 16 << 10
	// waitDelay bounds how long Wait blocks on I/O of a killed process, e.g.
	// when a grandchild still holds stderr open.
	waitDelay = 5 * time.Second
)

// SpawnError reports a tool that could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: start: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// NonZeroExitError reports a tool that ran but signaled failure.
type NonZeroExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *NonZeroExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

// process is a spawned tool. The owner must read stdout before calling Wait
// and must always call Close, which kills and reaps a process that was not
// waited for.
type process struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	pipe   io.ReadCloser // nil when stdout is redirected
	stdout *bufio.Reader
	stderr cappedBuffer

	waitOnce sync.Once
	waited   atomic.Bool
	waitErr  error
}

// startProcess runs argv in dir without a shell. When stdout is nil the
// output is available through Stdout, otherwise it is written to stdout.
func startProcess(ctx context.Context, dir string, argv []string, stdout io.Writer) (*process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("command not specified")
	}
	name := commandName(argv)
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	p := &process{name: name, ctx: ctx, cancel: cancel, cmd: cmd}
	cmd.Stderr = &p.stderr
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			cancel()
			return nil, &SpawnError{Command: name, Err: err}
		}
		p.pipe = pipe
		p.stdout = bufio.NewReader(pipe)
	}
	slog.Debug("spawn",
		slog.String("command", name),
		slog.String("dir", dir),
		slog.Any("argv", argv),
	)
	if err := cmd.Start(); err != nil {
		cancel()
		if p.pipe != nil {
			_ = p.pipe.Close()
		}
		return nil, &SpawnError{Command: name, Err: err}
	}
	return p, nil
}

// run spawns argv in dir, hands its stdout to parse, then waits for it.
// A nil parse just drains the output.
func run(ctx context.Context, dir string, argv []string, parse func(io.Reader) error) error {
	p, err := startProcess(ctx, dir, argv, nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if parse != nil {
		if err := parse(p.Stdout()); err != nil {
			return err
		}
	}
	return p.Wait()
}

func (p *process) Stdout() io.Reader {
	if p.stdout == nil {
		return strings.NewReader("")
	}
	return p.stdout
}

// Wait discards any unread output and collects the exit status. Output must
// be consumed first: a tool blocked on a full pipe never exits.
func (p *process) Wait() error {
	if p.stdout != nil {
		if _, err := io.Copy(io.Discard, p.stdout); err != nil {
			slog.Debug("drain stdout", slog.String("command", p.name), slog.Any("error", err))
		}
	}
	return p.wait()
}

func (p *process) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.waited.Store(true)
		p.cancel()
	})
	return p.exitError(p.waitErr)
}

// Close kills and reaps the process unless it was already waited for.
func (p *process) Close() {
	if p == nil || p.waited.Load() {
		return
	}
	slog.Debug("killing unfinished process", slog.String("command", p.name))
	p.cancel()
	if p.pipe != nil {
		_ = p.pipe.Close()
	}
	if err := p.wait(); err != nil {
		slog.Debug("reap", slog.String("command", p.name), slog.Any("error", err))
	}
}

func (p *process) exitError(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := p.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", p.name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &NonZeroExitError{
			Command:  p.name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(p.stderr.String()),
		}
	}
	return fmt.Errorf("%s: %w", p.name, err)
}

// commandName is the tool and subcommand, e.g. "hg log", used as error context.
func commandName(argv []string) string {
	name := argv[0]
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	args := argv[1:]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-c" || args[i] == "-C":
			// git option taking a value
			i++
		case strings.HasPrefix(args[i], "-"):
		default:
			return name + " " + args[i]
		}
	}
	return name
}

// cappedBuffer keeps the first maxStderr bytes written to it.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxStderr - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
