// Package workspace materializes the isolated, execution-scoped directory
// a test runs inside: generated source, runner configuration and a manifest
// for dependency resolution.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/testharbor/testharbor/types"
)

const (
	SourceFilename   = "generated.spec.ts"
	ConfigFilename   = "playwright.config.ts"
	ManifestFilename = "package.json"

	// OutputDirname and ReportDirname live under the per-session results
	// directory in durable storage, not under the workspace itself.
	OutputDirname = "test-results"
	ReportDirname = "report"
	ReportFile    = "report.json"
)

// Builder creates and removes per-execution workspace directories.
type Builder struct {
	log  zerolog.Logger
	root string
}

// NewBuilder creates the workspace root if needed.
func NewBuilder(log zerolog.Logger, root string) (*Builder, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Builder{
		log:  log.With().Str("component", "workspace").Logger(),
		root: root,
	}, nil
}

// Build creates the session's workspace directory and writes the test
// source, the runner configuration and the dependency manifest into it.
// resultsDir is the durable per-session results directory the runner's
// output is pointed at.
func (b *Builder) Build(def types.TestDefinition, sessionID, resultsDir string) (string, error) {
	dir := filepath.Join(b.root, sessionID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace for session %s: %w", sessionID, err)
	}

	// A half-built workspace is removed right here; the caller only tears
	// down workspaces it was handed, and a leftover directory would block
	// the session id from ever being reused.
	for _, sub := range []string{OutputDirname, ReportDirname} {
		if err := os.MkdirAll(filepath.Join(resultsDir, sub), 0o755); err != nil {
			b.Teardown(dir)
			return "", fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, SourceFilename), []byte(def.Code), 0o644); err != nil {
		b.Teardown(dir)
		return "", fmt.Errorf("failed to write test source: %w", err)
	}
	if err := b.writeRunnerConfig(dir, def.Config, resultsDir); err != nil {
		b.Teardown(dir)
		return "", err
	}
	if err := b.writeManifest(dir, sessionID); err != nil {
		b.Teardown(dir)
		return "", err
	}

	b.log.Debug().Str("session", sessionID).Str("dir", dir).Msg("workspace built")
	return dir, nil
}

// Teardown removes a workspace directory. It is idempotent and best-effort:
// errors are logged, never raised.
func (b *Builder) Teardown(path string) {
	if path == "" {
		return
	}
	// Refuse to remove anything outside the workspace root.
	rel, err := filepath.Rel(b.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		b.log.Error().Str("path", path).Msg("refusing to tear down path outside workspace root")
		return
	}
	if err := os.RemoveAll(path); err != nil {
		b.log.Error().Err(err).Str("path", path).Msg("workspace teardown failed")
		return
	}
	b.log.Debug().Str("path", path).Msg("workspace removed")
}

// DeviceProfile maps the abstract browser field to the runner's device
// profile. Unrecognized names fall back to a Chromium-equivalent profile.
func DeviceProfile(browser string) string {
	switch strings.ToLower(browser) {
	case "firefox":
		return "Desktop Firefox"
	case "webkit", "safari":
		return "Desktop Safari"
	case "edge", "msedge":
		return "Desktop Edge"
	default:
		return "Desktop Chrome"
	}
}

// runnerConfigTemplate translates a RunConfig into the runner's own
// configuration format, with one machine-readable and one human-readable
// reporter.
var runnerConfigTemplate = template.Must(template.New("playwright.config").Parse(`import { defineConfig, devices } from '@playwright/test';

export default defineConfig({
  testDir: '.',
  timeout: {{.TimeoutMS}},
  retries: {{.Retries}},
  workers: {{.Workers}},
  outputDir: '{{.OutputDir}}',
  reporter: [
    ['json', { outputFile: '{{.ReportFile}}' }],
    ['list'],
  ],
  use: {
    screenshot: '{{.Screenshot}}',
    video: '{{.Video}}',
    trace: '{{.Trace}}',
    viewport: { width: {{.ViewportWidth}}, height: {{.ViewportHeight}} },
  },
  projects: [
    {
      name: '{{.Browser}}',
      use: { ...devices['{{.Device}}'] },
    },
  ],
});
`))

type runnerConfigData struct {
	TimeoutMS      int64
	Retries        int
	Workers        int
	OutputDir      string
	ReportFile     string
	Screenshot     types.CapturePolicy
	Video          types.CapturePolicy
	Trace          types.CapturePolicy
	ViewportWidth  int
	ViewportHeight int
	Browser        string
	Device         string
}

func (b *Builder) writeRunnerConfig(dir string, cfg types.RunConfig, resultsDir string) error {
	cfg = cfg.WithDefaults()
	data := runnerConfigData{
		TimeoutMS:      cfg.Timeout.Milliseconds(),
		Retries:        cfg.Retries,
		Workers:        cfg.Workers,
		OutputDir:      filepath.ToSlash(filepath.Join(resultsDir, OutputDirname)),
		ReportFile:     filepath.ToSlash(filepath.Join(resultsDir, ReportDirname, ReportFile)),
		Screenshot:     cfg.Screenshot,
		Video:          cfg.Video,
		Trace:          cfg.Trace,
		ViewportWidth:  cfg.Viewport.Width,
		ViewportHeight: cfg.Viewport.Height,
		Browser:        strings.ToLower(cfg.Browser),
		Device:         DeviceProfile(cfg.Browser),
	}

	f, err := os.Create(filepath.Join(dir, ConfigFilename))
	if err != nil {
		return fmt.Errorf("failed to create runner config: %w", err)
	}
	defer f.Close()

	if err := runnerConfigTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("failed to render runner config: %w", err)
	}
	return nil
}

// writeManifest writes the package manifest the runner needs to resolve
// its own dependencies.
func (b *Builder) writeManifest(dir, sessionID string) error {
	manifest := fmt.Sprintf(`{
  "name": "testharbor-run-%s",
  "version": "1.0.0",
  "private": true,
  "devDependencies": {
    "@playwright/test": "^1.48.0"
  }
}
`, sessionID)
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
