package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	harbor "github.com/testharbor/testharbor"
	"github.com/testharbor/testharbor/exitcodes"
	"github.com/testharbor/testharbor/flags"
	"github.com/testharbor/testharbor/registry"
	"github.com/testharbor/testharbor/service"
	"github.com/testharbor/testharbor/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testharbor"
	app.Usage = "Browser test execution orchestration service"
	app.Description = "testharbor runs generated browser/API tests in isolated workspaces, streams live output and persists results"
	app.Flags = flags.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(ctx *cli.Context) error {
	log, err := newLogger(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	cfg, err := harbor.NewConfig(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create config: %v", err), exitcodes.RuntimeErr)
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(ctx.App.Name),
		otelconfig.WithServiceVersion(ctx.App.Version),
	)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry disabled")
	} else {
		defer otelShutdown()
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator, err := harbor.New(runCtx, cfg, log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create orchestrator: %v", err), exitcodes.RuntimeErr)
	}

	if cfg.TestFile != "" {
		return runOnce(runCtx, log, cfg, orchestrator)
	}
	return serve(runCtx, log, cfg, orchestrator)
}

// runOnce submits one definition file, prints the result summary and maps
// the outcome onto the process exit code.
func runOnce(ctx context.Context, log zerolog.Logger, cfg *harbor.Config, orchestrator *harbor.Orchestrator) error {
	def, err := registry.LoadDefinitionFile(cfg.TestFile)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load test definition: %v", err), exitcodes.RuntimeErr)
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	log.Info().Str("test", def.ID).Str("session", sessionID).Msg("running test")
	result, err := orchestrator.SubmitExecution(ctx, *def, sessionID)
	if shutdownErr := orchestrator.Shutdown(context.Background()); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("shutdown incomplete")
	}
	if err != nil {
		// Admission, environment and spawn errors are all runtime errors
		// in one-shot mode; a failing test is not.
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	formatter := harbor.NewConsoleResultFormatter(os.Stdout)
	if err := formatter.FormatResult(result); err != nil {
		log.Error().Err(err).Msg("failed to format result")
	}
	if result.Status != types.StatusPassed {
		return cli.Exit("test failed", exitcodes.TestFailure)
	}
	return nil
}

// serve runs the HTTP surfaces until interrupted, then drains in-flight
// executions.
func serve(ctx context.Context, log zerolog.Logger, cfg *harbor.Config, orchestrator *harbor.Orchestrator) error {
	svcCfg := service.Config{
		Log:         log,
		HealthzAddr: cfg.HealthzAddr,
		MetricsAddr: cfg.MetricsAddr,
		APIAddr:     cfg.APIAddr,
		API: service.APIConfig{
			Submitter: orchestrator,
			Store:     orchestrator.Store(),
			Hub:       orchestrator.Hub(),
			Status:    orchestrator.Scheduler(),
			StaticDir: cfg.StorageRoot,
		},
	}
	svc := service.New(svcCfg)
	svc.Start(ctx, svcCfg)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orchestrator.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Msg("executions still in flight at shutdown")
	}
	svc.Shutdown()
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger(), nil
}
