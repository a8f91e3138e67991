package ccm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/armon/circbuf"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/ccmbridge/internal/metrics"
	"github.com/edvin/ccmbridge/internal/platform"
)

const (
	outPrefix = "ccmout> "
	errPrefix = "ccmerr> "

	tailSize       = 4096
	maxLineSize    = 1024 * 1024
	defaultTimeout = 10 * time.Minute
	waitDelay      = 5 * time.Second
)

// Runner executes cluster manager commands. Each invocation runs to completion or
// until the watchdog timeout kills it.
type Runner struct {
	logger  zerolog.Logger
	command []string
	env     []string
	timeout time.Duration
}

// NewRunner resolves command[0] against the PATH found in env so that a PATH override
// in the environment snapshot decides which binary runs.
func NewRunner(logger zerolog.Logger, command []string, env []string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	command = slices.Clone(command)
	if len(command) > 0 {
		if resolved, ok := lookPath(command[0], envValue(env, "PATH")); ok {
			command[0] = resolved
		}
	}
	return &Runner{
		logger:  logger.With().Str("component", "ccm-runner").Logger(),
		command: command,
		env:     env,
		timeout: timeout,
	}
}

// Run formats the command line, appends --config-dir=dir and executes it. The
// returned transcript holds both streams, one prefixed line each, in arrival order.
func (r *Runner) Run(ctx context.Context, dir, format string, args ...any) (string, error) {
	words := append(slices.Clone(r.command), strings.Fields(fmt.Sprintf(format, args...))...)
	words = append(words, "--config-dir="+dir)
	full := strings.Join(words, " ")
	label := commandLabel(words[len(r.command):])

	logger := r.logger.With().Str("exec_id", platform.NewExecutionID()).Logger()
	logger.Info().Str("command", full).Msg("executing ccm command")

	t, err := newTranscript()
	if err != nil {
		return "", err
	}

	watchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(watchCtx, words[0], words[1:]...)
	cmd.Env = r.env
	cmd.WaitDelay = waitDelay

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	var g errgroup.Group
	g.Go(func() error { return pump(outR, outPrefix, zerolog.DebugLevel, logger, t) })
	g.Go(func() error { return pump(errR, errPrefix, zerolog.ErrorLevel, logger, t) })

	start := time.Now()
	waitErr := cmd.Start()
	if waitErr == nil {
		waitErr = cmd.Wait()
	}
	outW.Close()
	errW.Close()
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("reading ccm output")
	}
	elapsed := time.Since(start)

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		logger.Warn().Str("command", full).Msg("ccm exited but its output was still held open")
		waitErr = nil
	}
	if waitErr == nil {
		metrics.ObserveCommand(label, metrics.ResultOK, elapsed)
		return t.String(), nil
	}

	execErr := &ExecError{Command: full, ExitCode: -1, Output: t.String(), Err: waitErr, tail: t.Tail()}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(watchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		execErr.Killed = true
		metrics.ObserveCommand(label, metrics.ResultKilled, elapsed)
		logger.Error().Str("command", full).Dur("timeout", r.timeout).Msg("ccm command killed by watchdog")
		return execErr.Output, execErr
	case ctx.Err() != nil:
		execErr.Err = ctx.Err()
	case errors.As(waitErr, &exitErr):
		execErr.ExitCode = exitErr.ExitCode()
		logger.Error().Int("exit_code", execErr.ExitCode).Str("command", full).
			Msg("non-zero exit code returned from ccm command")
	}
	metrics.ObserveCommand(label, metrics.ResultFailed, elapsed)
	return execErr.Output, execErr
}

// pump copies lines from rd into the log and the transcript. On a read error it keeps
// draining rd so the process never blocks on a full pipe.
func pump(rd io.Reader, prefix string, level zerolog.Level, logger zerolog.Logger, t *transcript) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := prefix + sc.Text()
		logger.WithLevel(level).Msg(line)
		t.append(line)
	}
	if err := sc.Err(); err != nil {
		io.Copy(io.Discard, rd)
		return err
	}
	return nil
}

type transcript struct {
	mu   sync.Mutex
	all  strings.Builder
	tail *circbuf.Buffer
}

func newTranscript() (*transcript, error) {
	tail, err := circbuf.NewBuffer(tailSize)
	if err != nil {
		return nil, err
	}
	return &transcript{tail: tail}, nil
}

func (t *transcript) append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.all.WriteString(line)
	t.all.WriteByte('\n')
	t.tail.Write([]byte(line + "\n"))
}

func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.all.String()
}

// Tail returns the last few KB of output, starting at a line boundary when the
// transcript was truncated.
func (t *transcript) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.tail.String()
	if t.tail.TotalWritten() > t.tail.Size() {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	return s
}

// commandLabel names a command for metrics without its arguments or node number.
func commandLabel(words []string) string {
	if len(words) == 0 {
		return "unknown"
	}
	if strings.HasPrefix(words[0], "node") && len(words) > 1 {
		return "node " + words[1]
	}
	return words[0]
}

func envValue(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && (k == key || (runtime.GOOS == "windows" && strings.EqualFold(k, key))) {
			return v
		}
	}
	return ""
}

func lookPath(name, path string) (string, bool) {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name, true
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() && (runtime.GOOS == "windows" || info.Mode()&0o111 != 0) {
			return candidate, true
		}
	}
	return "", false
}
