// Package harbor wires the execution orchestration subsystem together: the
// bounded-concurrency scheduler, per-run workspaces, subprocess supervision,
// artifact collection and result persistence.
package harbor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/testharbor/testharbor/artifacts"
	"github.com/testharbor/testharbor/metrics"
	"github.com/testharbor/testharbor/runner"
	"github.com/testharbor/testharbor/scheduler"
	"github.com/testharbor/testharbor/storage"
	"github.com/testharbor/testharbor/stream"
	"github.com/testharbor/testharbor/types"
	"github.com/testharbor/testharbor/workspace"
)

// Orchestrator owns one instance of each execution collaborator. All state
// lives on the instance; nothing is registered at package level.
type Orchestrator struct {
	cfg       *Config
	log       zerolog.Logger
	hub       *stream.Hub
	store     *storage.Store
	builder   *workspace.Builder
	runner    *runner.ProcessRunner
	collector *artifacts.Collector
	sched     *scheduler.Scheduler
	tracer    trace.Tracer
}

var _ scheduler.Executor = (*Orchestrator)(nil)

// New constructs the orchestrator and every collaborator it owns.
func New(ctx context.Context, cfg *Config, log zerolog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	hub := stream.NewHub(stream.Config{
		Log:           log,
		SweepInterval: cfg.SweepInterval,
		Grace:         cfg.SweepGrace,
	})

	store, err := storage.NewStore(log, cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	builder, err := workspace.NewBuilder(log, cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace builder: %w", err)
	}

	procRunner, err := runner.New(runner.Config{
		Log:       log,
		Emitter:   hub,
		NpmBinary: cfg.NpmBinary,
		NpxBinary: cfg.NpxBinary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create process runner: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
		hub:       hub,
		store:     store,
		builder:   builder,
		runner:    procRunner,
		collector: artifacts.NewCollector(log, store),
		tracer:    otel.Tracer("execution orchestrator"),
	}

	sched, err := scheduler.New(scheduler.Config{
		Log:      log,
		Capacity: cfg.MaxConcurrentTests,
		Executor: o,
		Context:  ctx,
		OnQueued: func(exec *scheduler.Execution, position int) {
			hub.Emit(exec.SessionID, stream.Event{
				Type: stream.EventExecutionQueued,
				Data: map[string]any{"position": position},
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	o.sched = sched

	return o, nil
}

// Hub exposes the streaming hub for the HTTP layer.
func (o *Orchestrator) Hub() *stream.Hub {
	return o.hub
}

// Store exposes the result store for the HTTP layer.
func (o *Orchestrator) Store() storage.ResultStore {
	return o.store
}

// Scheduler exposes the scheduler for status reporting.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler {
	return o.sched
}

// SubmitExecution is the entry point from the request-routing layer. It
// validates the request, submits it to the scheduler and blocks until the
// execution reaches a terminal state, returning its result. Queued
// submissions are acknowledged through an execution-queued event carrying
// the queue position.
func (o *Orchestrator) SubmitExecution(ctx context.Context, def types.TestDefinition, sessionID string) (*types.ExecutionResult, error) {
	req := types.ExecutionRequest{
		Definition:  def,
		SessionID:   sessionID,
		SubmittedAt: time.Now(),
	}
	if err := req.Validate(); err != nil {
		metrics.RecordError("admission")
		return nil, NewAdmissionError(err)
	}

	// The execution-queued event, when applicable, is emitted by the
	// scheduler's OnQueued hook during admission.
	admission, err := o.sched.Submit(req)
	if err != nil {
		metrics.RecordError("admission")
		return nil, NewAdmissionError(err)
	}

	select {
	case outcome := <-admission.Execution.Outcome:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Result, nil
	case <-ctx.Done():
		// There is no cancellation API for an in-flight execution; the
		// run continues, the caller just stops waiting for it.
		return nil, ctx.Err()
	}
}

// Execute runs one admitted execution end to end. Each phase is a single
// awaited step: workspace build, process run, artifact collection, result
// persistence. The workspace is torn down on every path once the process
// has exited and collection finished.
func (o *Orchestrator) Execute(ctx context.Context, exec *scheduler.Execution) (*types.ExecutionResult, error) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("execution %s", exec.SessionID))
	defer span.End()

	log := o.log.With().
		Str("session", exec.SessionID).
		Str("execution", exec.ID).
		Logger()

	o.hub.Emit(exec.SessionID, stream.Event{
		Type: stream.EventExecutionStarted,
		Data: map[string]any{
			"executionId": exec.ID,
			"testId":      exec.Definition.ID,
		},
	})

	resultsDir := o.store.SessionResultsDir(exec.SessionID)
	workspacePath, err := o.builder.Build(exec.Definition, exec.SessionID, resultsDir)
	if err != nil {
		metrics.RecordError("workspace")
		o.emitExecutionError(exec.SessionID, err)
		return nil, err
	}
	defer o.builder.Teardown(workspacePath)

	result, err := o.runner.Run(ctx, workspacePath, exec.SessionID,
		func(chunk string) {
			o.hub.Emit(exec.SessionID, stream.Event{
				Type: stream.EventTestOutput,
				Data: map[string]any{"chunk": chunk},
			})
		},
		func(chunk string) {
			o.hub.Emit(exec.SessionID, stream.Event{
				Type: stream.EventTestError,
				Data: map[string]any{"chunk": chunk},
			})
		},
	)
	if err != nil {
		switch {
		case runner.IsEnvironmentError(err):
			metrics.RecordError("environment")
		case runner.IsSpawnError(err):
			metrics.RecordError("spawn")
		default:
			metrics.RecordError("runner")
		}
		o.emitExecutionError(exec.SessionID, err)
		return nil, err
	}
	result.ExecutionID = exec.ID

	o.collect(result, resultsDir, log)

	o.hub.Emit(exec.SessionID, stream.Event{
		Type: stream.EventTestCompleted,
		Data: map[string]any{
			"status":   string(result.Status),
			"duration": result.Duration.Milliseconds(),
			"exitCode": result.ExitCode,
		},
	})
	metrics.RecordExecution(result.Status, result.Duration)

	if err := o.store.SaveResult(result); err != nil {
		// The result is still returned to the caller; losing the durable
		// record must not turn a finished run into a lost one.
		metrics.RecordError("persistence")
		log.Error().Err(err).Msg("failed to persist result")
	}

	log.Info().
		Str("status", string(result.Status)).
		Int("exitCode", result.ExitCode).
		Int("artifacts", len(result.Artifacts)).
		Msg("execution completed")
	return result, nil
}

// collect discovers artifacts, parses the structured report and derives
// the summary. Failures here are non-fatal: they are attached to the
// result as its processing error and the result survives.
func (o *Orchestrator) collect(result *types.ExecutionResult, resultsDir string, log zerolog.Logger) {
	manifest, err := o.collector.Collect(resultsDir, result.SessionID)
	if err != nil {
		metrics.RecordError("post-processing")
		result.ProcessingError = err.Error()
		log.Warn().Err(err).Msg("artifact collection failed")
	}
	if manifest == nil {
		manifest = []types.Artifact{}
	}
	result.Artifacts = manifest

	reportPath := filepath.Join(resultsDir, workspace.ReportDirname, workspace.ReportFile)
	if _, err := os.Stat(reportPath); err == nil {
		report, err := artifacts.ParseReport(reportPath)
		if err != nil {
			metrics.RecordError("post-processing")
			if result.ProcessingError == "" {
				result.ProcessingError = err.Error()
			}
			log.Warn().Err(err).Msg("report parsing failed")
		} else {
			result.Report = report
		}
	}

	result.Summary = artifacts.Summarize(result)
}

func (o *Orchestrator) emitExecutionError(sessionID string, err error) {
	o.hub.Emit(sessionID, stream.Event{
		Type: stream.EventExecutionError,
		Data: map[string]any{"error": err.Error()},
	})
}

// Shutdown drains the scheduler and stops the streaming hub.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.sched.Shutdown(ctx)
	o.hub.Stop()
	return err
}
