// Package storage owns the durable side of an execution: the artifact
// buckets served as static content and the keyed result records.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/testharbor/testharbor/types"
)

const (
	ScreenshotsBucket = "screenshots"
	VideosBucket      = "videos"
	TracesBucket      = "traces"
	ResultsBucket     = "results"

	resultsFilename = "results.json"
)

// ResultStore is the persistence contract the execution core depends on:
// exactly one SaveResult call per completed execution.
type ResultStore interface {
	SaveResult(result *types.ExecutionResult) error
	GetResult(sessionID string) (*types.ExecutionResult, error)
	ListResults() ([]types.ExecutionResult, error)
}

// Store is a file-backed ResultStore plus the bucket layout for artifacts.
// Records live in a single JSON collection file; concurrent writers are
// serialized by a mutex and writes go through a temp-file rename.
type Store struct {
	log  zerolog.Logger
	root string

	mu sync.Mutex
}

var _ ResultStore = (*Store)(nil)

// NewStore creates the storage root and every artifact bucket beneath it.
func NewStore(log zerolog.Logger, root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}
	for _, bucket := range []string{ScreenshotsBucket, VideosBucket, TracesBucket, ResultsBucket} {
		if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	return &Store{
		log:  log.With().Str("component", "storage").Logger(),
		root: root,
	}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// BucketPath returns the on-disk directory for an artifact kind.
func (s *Store) BucketPath(kind types.ArtifactKind) string {
	return filepath.Join(s.root, BucketFor(kind))
}

// SessionResultsDir returns the per-session directory under the results
// bucket. The runner's output directory points here so reports and captures
// land in durable storage directly.
func (s *Store) SessionResultsDir(sessionID string) string {
	return filepath.Join(s.root, ResultsBucket, sessionID)
}

// BucketFor maps an artifact kind to its bucket name.
func BucketFor(kind types.ArtifactKind) string {
	switch kind {
	case types.ArtifactScreenshot:
		return ScreenshotsBucket
	case types.ArtifactVideo:
		return VideosBucket
	case types.ArtifactTrace:
		return TracesBucket
	default:
		return ResultsBucket
	}
}

// SaveResult appends the result record to the collection file.
func (s *Store) SaveResult(result *types.ExecutionResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}
	records = append(records, *result)
	return s.writeAll(records)
}

// GetResult returns the most recent record for a session id.
func (s *Store) GetResult(sessionID string) (*types.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].SessionID == sessionID {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("no result for session %s", sessionID)
}

// ListResults returns every persisted record, oldest first.
func (s *Store) ListResults() ([]types.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *Store) collectionPath() string {
	return filepath.Join(s.root, resultsFilename)
}

func (s *Store) readAll() ([]types.ExecutionResult, error) {
	data, err := os.ReadFile(s.collectionPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results collection: %w", err)
	}
	var records []types.ExecutionResult
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse results collection: %w", err)
	}
	return records, nil
}

// writeAll replaces the collection file atomically so a crash mid-write
// never leaves a truncated collection behind.
func (s *Store) writeAll(records []types.ExecutionResult) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results collection: %w", err)
	}

	tmp := s.collectionPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results collection: %w", err)
	}
	if err := os.Rename(tmp, s.collectionPath()); err != nil {
		return fmt.Errorf("failed to replace results collection: %w", err)
	}
	return nil
}
