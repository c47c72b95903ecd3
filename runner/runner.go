// Package runner spawns and supervises one external test-runner process
// per execution, streaming its output incrementally.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/rs/zerolog"

	"github.com/testharbor/testharbor/stream"
	"github.com/testharbor/testharbor/types"
)

// maxLineSize bounds a single streamed output line. Runner output can carry
// long base64 blobs in error contexts.
const maxLineSize = 1024 * 1024

// ChunkFunc receives one chunk of process output in arrival order for its
// stream. No ordering holds between the stdout and stderr streams.
type ChunkFunc func(chunk string)

// ProcessRunner executes the test-runner subprocess for a workspace.
type ProcessRunner struct {
	log     zerolog.Logger
	emitter stream.Emitter
	npm     string
	npx     string
}

// Config holds configuration for creating a new process runner.
type Config struct {
	Log       zerolog.Logger
	Emitter   stream.Emitter
	NpmBinary string // path to the npm binary, defaults to "npm"
	NpxBinary string // path to the npx binary, defaults to "npx"
}

// New creates a process runner.
func New(cfg Config) (*ProcessRunner, error) {
	if cfg.Emitter == nil {
		return nil, errors.New("emitter is required")
	}
	if cfg.NpmBinary == "" {
		cfg.NpmBinary = "npm"
	}
	if cfg.NpxBinary == "" {
		cfg.NpxBinary = "npx"
	}
	return &ProcessRunner{
		log:     cfg.Log.With().Str("component", "process-runner").Logger(),
		emitter: cfg.Emitter,
		npm:     cfg.NpmBinary,
		npx:     cfg.NpxBinary,
	}, nil
}

// Run resolves the workspace's runtime dependencies, then executes the
// test runner rooted at the workspace directory in unattended mode. Output
// is delivered line-by-line to the chunk callbacks as it arrives. The
// returned result carries exit code, timing and raw output; status is
// passed iff the process exited 0. A process that cannot start returns a
// SpawnError, never a failed-test result.
func (r *ProcessRunner) Run(ctx context.Context, workspacePath, sessionID string, onOutput, onError ChunkFunc) (*types.ExecutionResult, error) {
	if err := r.installDependencies(ctx, workspacePath, sessionID); err != nil {
		return nil, &EnvironmentError{Err: err}
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.npx, "playwright", "test")
	cmd.Dir = workspacePath
	// CI mode suppresses interactive prompts and progress animations.
	cmd.Env = append(os.Environ(), "CI=true")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Err: err}
	}

	r.log.Info().
		Str("session", sessionID).
		Str("dir", workspacePath).
		Str("command", cmd.String()).
		Msg("starting test runner")

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Err: err}
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := streamLines(stdout, func(line string) {
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
			onOutput(line)
		}); err != nil {
			r.log.Warn().Str("session", sessionID).Err(err).Msg("stdout stream truncated")
		}
	}()
	go func() {
		defer wg.Done()
		if err := streamLines(stderr, func(line string) {
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
			onError(line)
		}); err != nil {
			r.log.Warn().Str("session", sessionID).Err(err).Msg("stderr stream truncated")
		}
	}()
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, &SpawnError{Err: err}
		}
	}
	end := time.Now()

	status := types.StatusPassed
	if exitCode != 0 {
		status = types.StatusFailed
	}

	r.log.Info().
		Str("session", sessionID).
		Int("exitCode", exitCode).
		Str("status", string(status)).
		Dur("duration", end.Sub(start)).
		Msg("test runner exited")

	return &types.ExecutionResult{
		SessionID: sessionID,
		ExitCode:  exitCode,
		Status:    status,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Stdout:    stripansi.Strip(stdoutBuf.String()),
		Stderr:    stripansi.Strip(stderrBuf.String()),
	}, nil
}

// installDependencies resolves the workspace's runtime dependencies before
// the test process is attempted. Its output streams through the dependency
// installation events; failure is fatal for the execution.
func (r *ProcessRunner) installDependencies(ctx context.Context, workspacePath, sessionID string) error {
	r.emitter.Emit(sessionID, stream.Event{Type: stream.EventDependencyInstallStart})

	cmd := exec.CommandContext(ctx, r.npm, "install", "--no-audit", "--no-fund")
	cmd.Dir = workspacePath
	cmd.Env = append(os.Environ(), "CI=true")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.installFailed(sessionID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.installFailed(sessionID, err)
	}

	r.log.Debug().Str("session", sessionID).Str("command", cmd.String()).Msg("installing dependencies")

	if err := cmd.Start(); err != nil {
		return r.installFailed(sessionID, fmt.Errorf("failed to start %s: %w", r.npm, err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := streamLines(stdout, func(line string) {
			r.emitter.Emit(sessionID, stream.Event{
				Type: stream.EventDependencyInstallOut,
				Data: map[string]any{"chunk": line},
			})
		}); err != nil {
			r.log.Warn().Str("session", sessionID).Err(err).Msg("install output stream truncated")
		}
	}()
	go func() {
		defer wg.Done()
		if err := streamLines(stderr, func(line string) {
			r.emitter.Emit(sessionID, stream.Event{
				Type: stream.EventDependencyInstallErr,
				Data: map[string]any{"chunk": line},
			})
		}); err != nil {
			r.log.Warn().Str("session", sessionID).Err(err).Msg("install error stream truncated")
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return r.installFailed(sessionID, fmt.Errorf("dependency installation failed: %w", err))
	}

	r.emitter.Emit(sessionID, stream.Event{Type: stream.EventDependencyInstallDone})
	return nil
}

func (r *ProcessRunner) installFailed(sessionID string, err error) error {
	r.log.Error().Str("session", sessionID).Err(err).Msg("dependency installation failed")
	r.emitter.Emit(sessionID, stream.Event{
		Type: stream.EventDependencyInstallErr,
		Data: map[string]any{"error": err.Error()},
	})
	return err
}

// streamLines delivers each line of the reader to fn in arrival order. On
// a scan error, an oversized line included, the remainder of the stream is
// drained so the child process never blocks writing to a full pipe.
func streamLines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
