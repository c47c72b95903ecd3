package harbor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/testharbor/testharbor/flags"
)

// TOMLDuration lets duration fields in the config file be written as
// strings like "30s".
type TOMLDuration time.Duration

func (t *TOMLDuration) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*t = TOMLDuration(d)
	return nil
}

// FileConfig is the optional TOML overlay. Zero values mean "not set";
// CLI flags fill the rest.
type FileConfig struct {
	MaxConcurrentTests int    `toml:"max_concurrent_tests"`
	WorkspaceRoot      string `toml:"workspace_root"`
	StorageRoot        string `toml:"storage_root"`
	NpmBinary          string `toml:"npm_binary"`
	NpxBinary          string `toml:"npx_binary"`

	Server struct {
		APIAddr     string `toml:"api_addr"`
		MetricsAddr string `toml:"metrics_addr"`
		HealthzAddr string `toml:"healthz_addr"`
	} `toml:"server"`

	Stream struct {
		SweepInterval TOMLDuration `toml:"sweep_interval"`
		SweepGrace    TOMLDuration `toml:"sweep_grace"`
	} `toml:"stream"`
}

// Config holds the fully-resolved application configuration. Every field
// is defaulted here, at construction time, never ad hoc in the execution
// path.
type Config struct {
	MaxConcurrentTests int
	WorkspaceRoot      string
	StorageRoot        string
	NpmBinary          string
	NpxBinary          string

	APIAddr     string
	MetricsAddr string
	HealthzAddr string

	SweepInterval time.Duration
	SweepGrace    time.Duration

	LogLevel string

	// One-shot mode: submit the definition in TestFile once and exit.
	TestFile  string
	SessionID string
}

// NewConfig builds the configuration from CLI flags, overlaid on an
// optional TOML file, and resolves all paths to absolute.
func NewConfig(ctx *cli.Context) (*Config, error) {
	if err := flags.CheckValid(ctx); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	cfg := &Config{
		MaxConcurrentTests: ctx.Int(flags.MaxConcurrent.Name),
		WorkspaceRoot:      ctx.String(flags.WorkspaceDir.Name),
		StorageRoot:        ctx.String(flags.StorageDir.Name),
		NpmBinary:          ctx.String(flags.NpmBinary.Name),
		NpxBinary:          ctx.String(flags.NpxBinary.Name),
		APIAddr:            ctx.String(flags.APIAddr.Name),
		MetricsAddr:        ctx.String(flags.MetricsAddr.Name),
		HealthzAddr:        ctx.String(flags.HealthzAddr.Name),
		SweepInterval:      ctx.Duration(flags.SweepInterval.Name),
		SweepGrace:         ctx.Duration(flags.SweepGrace.Name),
		LogLevel:           ctx.String(flags.LogLevel.Name),
		TestFile:           ctx.String(flags.TestFile.Name),
		SessionID:          ctx.String(flags.SessionID.Name),
	}

	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		if err := cfg.applyFile(ctx, path); err != nil {
			return nil, err
		}
	}

	var err error
	cfg.WorkspaceRoot, err = filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	cfg.StorageRoot, err = filepath.Abs(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	if cfg.MaxConcurrentTests <= 0 {
		return nil, fmt.Errorf("max concurrent tests must be positive, got %d", cfg.MaxConcurrentTests)
	}
	return cfg, nil
}

// applyFile overlays values from the TOML file for every flag the caller
// did not set explicitly on the command line.
func (c *Config) applyFile(ctx *cli.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var file FileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if file.MaxConcurrentTests != 0 && !ctx.IsSet(flags.MaxConcurrent.Name) {
		c.MaxConcurrentTests = file.MaxConcurrentTests
	}
	if file.WorkspaceRoot != "" && !ctx.IsSet(flags.WorkspaceDir.Name) {
		c.WorkspaceRoot = file.WorkspaceRoot
	}
	if file.StorageRoot != "" && !ctx.IsSet(flags.StorageDir.Name) {
		c.StorageRoot = file.StorageRoot
	}
	if file.NpmBinary != "" && !ctx.IsSet(flags.NpmBinary.Name) {
		c.NpmBinary = file.NpmBinary
	}
	if file.NpxBinary != "" && !ctx.IsSet(flags.NpxBinary.Name) {
		c.NpxBinary = file.NpxBinary
	}
	if file.Server.APIAddr != "" && !ctx.IsSet(flags.APIAddr.Name) {
		c.APIAddr = file.Server.APIAddr
	}
	if file.Server.MetricsAddr != "" && !ctx.IsSet(flags.MetricsAddr.Name) {
		c.MetricsAddr = file.Server.MetricsAddr
	}
	if file.Server.HealthzAddr != "" && !ctx.IsSet(flags.HealthzAddr.Name) {
		c.HealthzAddr = file.Server.HealthzAddr
	}
	if file.Stream.SweepInterval != 0 && !ctx.IsSet(flags.SweepInterval.Name) {
		c.SweepInterval = time.Duration(file.Stream.SweepInterval)
	}
	if file.Stream.SweepGrace != 0 && !ctx.IsSet(flags.SweepGrace.Name) {
		c.SweepGrace = time.Duration(file.Stream.SweepGrace)
	}
	return nil
}
