package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTHARBOR"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to a TOML configuration file; flags override file values",
	}
	MaxConcurrent = &cli.IntFlag{
		Name:    "max-concurrent",
		Value:   3,
		EnvVars: prefixEnvVars("MAX_CONCURRENT"),
		Usage:   "Maximum number of test executions running at once",
	}
	WorkspaceDir = &cli.StringFlag{
		Name:    "workspace-dir",
		Value:   "workspaces",
		EnvVars: prefixEnvVars("WORKSPACE_DIR"),
		Usage:   "Directory under which per-execution workspaces are created",
	}
	StorageDir = &cli.StringFlag{
		Name:    "storage-dir",
		Value:   "storage",
		EnvVars: prefixEnvVars("STORAGE_DIR"),
		Usage:   "Directory for durable results and artifact buckets",
	}
	NpmBinary = &cli.StringFlag{
		Name:    "npm-binary",
		Value:   "npm",
		EnvVars: prefixEnvVars("NPM_BINARY"),
		Usage:   "Path to the npm binary used for dependency installation",
	}
	NpxBinary = &cli.StringFlag{
		Name:    "npx-binary",
		Value:   "npx",
		EnvVars: prefixEnvVars("NPX_BINARY"),
		Usage:   "Path to the npx binary used to invoke the test runner",
	}
	APIAddr = &cli.StringFlag{
		Name:    "api-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: prefixEnvVars("API_ADDR"),
		Usage:   "Listen address for the HTTP API and streaming endpoint",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "0.0.0.0:7300",
		EnvVars: prefixEnvVars("METRICS_ADDR"),
		Usage:   "Listen address for the Prometheus metrics server",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8090",
		EnvVars: prefixEnvVars("HEALTHZ_ADDR"),
		Usage:   "Listen address for the health check server",
	}
	SweepInterval = &cli.DurationFlag{
		Name:    "sweep-interval",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVars("SWEEP_INTERVAL"),
		Usage:   "How often the streaming hub reaps disconnected connections",
	}
	SweepGrace = &cli.DurationFlag{
		Name:    "sweep-grace",
		Value:   time.Minute,
		EnvVars: prefixEnvVars("SWEEP_GRACE"),
		Usage:   "How long a disconnected streaming connection may linger before removal",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error)",
	}
	TestFile = &cli.StringFlag{
		Name:    "test-file",
		Value:   "",
		EnvVars: prefixEnvVars("TEST_FILE"),
		Usage:   "Path to a YAML test definition; runs it once and exits instead of serving",
	}
	SessionID = &cli.StringFlag{
		Name:    "session-id",
		Value:   "",
		EnvVars: prefixEnvVars("SESSION_ID"),
		Usage:   "Session id for a one-shot run; generated when omitted",
	}
)

var Flags = []cli.Flag{
	ConfigFile,
	MaxConcurrent,
	WorkspaceDir,
	StorageDir,
	NpmBinary,
	NpxBinary,
	APIAddr,
	MetricsAddr,
	HealthzAddr,
	SweepInterval,
	SweepGrace,
	LogLevel,
	TestFile,
	SessionID,
}

// CheckValid rejects flag combinations that cannot work before any state
// is created.
func CheckValid(ctx *cli.Context) error {
	if ctx.Int(MaxConcurrent.Name) <= 0 {
		return fmt.Errorf("%s must be positive", MaxConcurrent.Name)
	}
	if ctx.String(SessionID.Name) != "" && ctx.String(TestFile.Name) == "" {
		return fmt.Errorf("%s requires %s", SessionID.Name, TestFile.Name)
	}
	return nil
}
