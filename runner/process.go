package runner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apiprobe/apiprobe/errors"
)

const (
	// maxLineBytes bounds a single output line; cucumber event lines can
	// carry whole feature sources.
	maxLineBytes = 1024 * 1024

	// maxStderrLines bounds the stderr tail retained for ProcessFailure.
	maxStderrLines = 200
)

// ProcessFailure reports a runner process that failed to spawn, exited
// non-zero, or was killed at the execution timeout. The caller still parses
// the report afterward; a failing suite usually writes one.
type ProcessFailure struct {
	ExitCode int
	Stderr   string
	TimedOut bool
}

func (f *ProcessFailure) Error() string {
	if f.TimedOut {
		return fmt.Sprintf("runner timed out (exit code %d)", f.ExitCode)
	}
	if f.Stderr != "" {
		return fmt.Sprintf("runner exited with code %d: %s", f.ExitCode, f.Stderr)
	}
	return fmt.Sprintf("runner exited with code %d", f.ExitCode)
}

// AsProcessFailure unwraps err to a *ProcessFailure if one is in the chain.
func AsProcessFailure(err error) (*ProcessFailure, bool) {
	var failure *ProcessFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

// Runner spawns the external scenario runner and streams its output.
type Runner struct {
	logger *zap.SugaredLogger
}

// NewRunner creates a process runner. The logger must not be nil.
func NewRunner(logger *zap.SugaredLogger) *Runner {
	return &Runner{logger: logger}
}

// Run executes the command, feeding each stdout line to onLine as it
// arrives. It blocks until the process exits and returns a *ProcessFailure
// on spawn error, non-zero exit, or timeout. The report directory is
// created before spawning so the child can always write its report.
//
// When spec.TimeoutSec is positive the child is killed once the wall clock
// expires, on top of whatever deadline ctx already carries.
func (r *Runner) Run(ctx context.Context, spec CommandSpec, onLine func(string)) error {
	if err := os.MkdirAll(filepath.Dir(spec.ReportPath), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create report directory for %s", spec.ReportPath)
	}

	runCtx := ctx
	if spec.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(spec.TimeoutSec)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create runner stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create runner stderr pipe")
	}

	r.logger.Infow("Starting runner process",
		"command", spec.String(),
		"dir", spec.Dir,
		"workers", spec.Workers,
		"timeout_sec", spec.TimeoutSec,
	)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return &ProcessFailure{ExitCode: -1, Stderr: err.Error()}
	}

	var stderrTail []string
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if onLine != nil {
				onLine(line)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			r.logger.Debugw("Runner stderr", "line", line)
			stderrTail = append(stderrTail, line)
			if len(stderrTail) > maxStderrLines {
				stderrTail = stderrTail[1:]
			}
		}
	}()

	// Both pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()
	elapsed := time.Since(started)

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		timedOut := runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)

		r.logger.Warnw("Runner process failed",
			"exit_code", exitCode,
			"timed_out", timedOut,
			"duration_ms", elapsed.Milliseconds(),
		)
		return &ProcessFailure{
			ExitCode: exitCode,
			Stderr:   strings.Join(stderrTail, "\n"),
			TimedOut: timedOut,
		}
	}

	r.logger.Infow("Runner process completed",
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}
