// Package store implements the experiment store on top of a whole-document
// storage backend.
//
// Every call re-reads the backing document; every mutation rewrites it in
// full. Nothing is cached between calls so the JSON file stays the single
// source of truth for people and tools that inspect it directly.
package store

import (
	"context"
	"time"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

// Store defines the experiment store operations
type Store interface {
	// List returns every experiment in insertion order
	List(ctx context.Context) ([]types.Experiment, error)

	// Get returns the experiment with the given id or types.ErrNotFound
	Get(ctx context.Context, id string) (types.Experiment, error)

	// Create assigns an id and creation stamp, appends and persists the record
	Create(ctx context.Context, exp types.Experiment, actor string) (types.Experiment, error)

	// Update replaces the requested fields and stamps the modification
	Update(ctx context.Context, id string, req types.UpdateRequest, actor string) (types.Experiment, error)

	// Modify applies fn to the stored experiment within a single locked
	// read-modify-write cycle, then validates and persists the result.
	// An error from fn aborts the write.
	Modify(ctx context.Context, id string, actor string, fn func(exp *types.Experiment) error) (types.Experiment, error)

	// Delete removes the experiment if present and reports whether it was
	Delete(ctx context.Context, id string) (bool, error)

	// Export serialises an experiment's table in the given format
	Export(ctx context.Context, id string, format *formats.TableFormat) ([]byte, error)

	// Path returns the backing document location
	Path() string

	// Close releases resources held by the store
	Close() error
}

// Option configures the JSON store
type Option func(*jsonStore)

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *jsonStore) {
		s.timeFunc = fn
	}
}

// WithIDFunc sets a custom id generator for testing
func WithIDFunc(fn func() string) Option {
	return func(s *jsonStore) {
		s.idFunc = fn
	}
}
