// Package artifacts discovers the durable byproducts of a run, relocates
// them into storage buckets and derives the result summary.
package artifacts

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/testharbor/testharbor/metrics"
	"github.com/testharbor/testharbor/storage"
	"github.com/testharbor/testharbor/types"
)

// copyConcurrency bounds parallel artifact copies so a capture-heavy run
// does not exhaust file descriptors.
const copyConcurrency = 4

// Collector relocates run output into durable storage and builds the
// artifact manifest.
type Collector struct {
	log   zerolog.Logger
	store *storage.Store
}

// NewCollector creates a collector writing into the given store's buckets.
func NewCollector(log zerolog.Logger, store *storage.Store) *Collector {
	return &Collector{
		log:   log.With().Str("component", "artifact-collector").Logger(),
		store: store,
	}
}

// Collect recursively discovers artifacts under the run's output directory
// and copies each into its bucket, renamed to the session id plus the
// flattened path relative to the output directory. Per-test subdirectories
// routinely carry identical basenames (trace.zip, video.webm), so the
// relative path is what keeps bucket names unique within a run as well as
// across runs. The returned manifest is sorted by storage path for stable
// output.
func (c *Collector) Collect(resultsDir, sessionID string) ([]types.Artifact, error) {
	var discovered []string
	err := filepath.WalkDir(resultsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := Classify(path); ok {
			discovered = append(discovered, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		// No output directory means the run produced nothing to collect.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact discovery failed: %w", err)
	}

	var (
		mu       sync.Mutex
		manifest []types.Artifact
	)
	g := new(errgroup.Group)
	g.SetLimit(copyConcurrency)

	for _, path := range discovered {
		g.Go(func() error {
			artifact, err := c.relocate(resultsDir, path, sessionID)
			if err != nil {
				return err
			}
			mu.Lock()
			manifest = append(manifest, *artifact)
			mu.Unlock()
			metrics.RecordArtifact(artifact.Kind)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return manifest, fmt.Errorf("artifact collection failed: %w", err)
	}

	sort.Slice(manifest, func(i, j int) bool {
		return manifest[i].StoragePath < manifest[j].StoragePath
	})

	c.log.Debug().
		Str("session", sessionID).
		Int("count", len(manifest)).
		Msg("artifacts collected")
	return manifest, nil
}

// relocate copies one file into its bucket and records its manifest entry.
func (c *Collector) relocate(resultsDir, path, sessionID string) (*types.Artifact, error) {
	kind, ok := Classify(path)
	if !ok {
		return nil, fmt.Errorf("file %s is not a recognized artifact", path)
	}

	rel, err := filepath.Rel(resultsDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	name := fmt.Sprintf("%s-%s", sessionID, strings.ReplaceAll(filepath.ToSlash(rel), "/", "-"))
	dest := filepath.Join(c.store.BucketPath(kind), name)

	size, err := copyFile(path, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact %s: %w", filepath.Base(path), err)
	}

	return &types.Artifact{
		Filename:    name,
		StoragePath: dest,
		URL:         "/" + storage.BucketFor(kind) + "/" + name,
		Size:        size,
		CapturedAt:  time.Now().UTC(),
		Kind:        kind,
	}, nil
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Close()
}
