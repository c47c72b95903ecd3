// Package registry loads pre-generated test definitions from YAML files
// for submission outside the HTTP path.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/testharbor/testharbor/types"
)

// Registry manages loaded test definitions.
type Registry struct {
	config      Config
	definitions []types.TestDefinition
	mu          sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log zerolog.Logger
	// Dir is scanned non-recursively for *.yaml / *.yml definition files.
	Dir string
}

// NewRegistry creates a registry and loads every definition under the
// configured directory.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("definitions directory is required")
	}

	r := &Registry{config: cfg}
	if err := r.loadDefinitions(cfg.Dir); err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}
	cfg.Log.Debug().Int("count", len(r.definitions)).Msg("registry loaded")
	return r, nil
}

// Definitions returns every loaded definition.
func (r *Registry) Definitions() []types.TestDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TestDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Get returns the definition with the given id.
func (r *Registry) Get(id string) (types.TestDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.definitions {
		if def.ID == id {
			return def, true
		}
	}
	return types.TestDefinition{}, false
}

func (r *Registry) loadDefinitions(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var definitions []types.TestDefinition
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry) {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		definitions = append(definitions, *def)
	}
	r.definitions = definitions
	return nil
}

func isDefinitionFile(entry fs.DirEntry) bool {
	switch filepath.Ext(entry.Name()) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDefinitionFile parses and validates a single YAML definition file.
func LoadDefinitionFile(path string) (*types.TestDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	var def types.TestDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	def.Config = def.Config.WithDefaults()
	return &def, nil
}
