// Package storage provides the persistence layer for the experiment store.
//
// All experiments live in one JSON document that is always read and written
// as a whole. Mutations go through Update, which holds an in-process write
// lock and a cross-process file lock for the complete read-modify-write cycle.
package storage

import (
	"context"

	"github.com/arthur-debert/faraday/types"
)

// StoreData represents the complete document stored in the backend
type StoreData struct {
	Experiments []types.Experiment `json:"experiments"`

	// Legacy is set when the document was read from the bare-array layout
	// used by the mobile build.
	Legacy bool `json:"-"`
}

// Storage defines the low-level interface for whole-document persistence.
type Storage interface {
	// Load reads the entire document. A missing file yields an empty document.
	Load(ctx context.Context) (*StoreData, error)

	// Update loads the document, applies fn and writes the result back, all
	// under exclusive locks. Nothing is written when fn returns an error.
	Update(ctx context.Context, fn func(data *StoreData) error) error

	// Path returns the backing file location
	Path() string

	// Close releases any resources held by the storage
	Close() error
}
