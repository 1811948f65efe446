package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arthur-debert/faraday/faraday/export"
	"github.com/arthur-debert/faraday/faraday/storage"
	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/internal/validation"
	"github.com/arthur-debert/faraday/types"
)

// jsonStore implements Store over a storage.Storage document
type jsonStore struct {
	backend  storage.Storage
	timeFunc func() time.Time
	idFunc   func() string
}

// New opens the store backed by the given storage. Legacy documents and
// records without ids are upgraded and written back once.
func New(ctx context.Context, backend storage.Storage, opts ...Option) (Store, error) {
	s := &jsonStore{
		backend:  backend,
		timeFunc: time.Now,
		idFunc:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// NewFile opens a store backed by the JSON document at path
func NewFile(ctx context.Context, path string, opts ...Option) (Store, error) {
	return New(ctx, storage.NewJSONStorage(path), opts...)
}

// upgrade assigns ids to records that lack one and rewrites legacy documents
func (s *jsonStore) upgrade(ctx context.Context) error {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	if !needsUpgrade(data) {
		return nil
	}

	return s.backend.Update(ctx, func(data *storage.StoreData) error {
		now := s.timeFunc().UTC()
		for i := range data.Experiments {
			exp := &data.Experiments[i]
			if exp.ID == "" {
				exp.ID = s.idFunc()
			}
			if exp.UploadedAt.IsZero() {
				exp.UploadedAt = now
			}
		}
		return nil
	})
}

func needsUpgrade(data *storage.StoreData) bool {
	if data.Legacy {
		return true
	}
	for _, exp := range data.Experiments {
		if exp.ID == "" {
			return true
		}
	}
	return false
}

// List implements Store.List
func (s *jsonStore) List(ctx context.Context) ([]types.Experiment, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Experiments, nil
}

// Get implements Store.Get
func (s *jsonStore) Get(ctx context.Context, id string) (types.Experiment, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return types.Experiment{}, err
	}
	if i := indexOf(data.Experiments, id); i >= 0 {
		return data.Experiments[i], nil
	}
	return types.Experiment{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
}

// Create implements Store.Create
func (s *jsonStore) Create(ctx context.Context, exp types.Experiment, actor string) (types.Experiment, error) {
	if err := validation.ValidateExperiment(exp); err != nil {
		return types.Experiment{}, err
	}

	exp.ID = s.idFunc()
	exp.UploadedBy = actor
	exp.UploadedAt = s.timeFunc().UTC()
	exp.ModifiedBy = ""
	exp.ModifiedAt = nil
	if exp.Columns == nil {
		exp.Columns = []string{}
	}
	if exp.Data == nil {
		exp.Data = []types.Row{}
	}

	err := s.backend.Update(ctx, func(data *storage.StoreData) error {
		data.Experiments = append(data.Experiments, exp)
		return nil
	})
	if err != nil {
		return types.Experiment{}, err
	}
	return exp, nil
}

// Update implements Store.Update
func (s *jsonStore) Update(ctx context.Context, id string, req types.UpdateRequest, actor string) (types.Experiment, error) {
	return s.Modify(ctx, id, actor, func(exp *types.Experiment) error {
		if req.Name != nil {
			exp.Name = *req.Name
		}
		if req.Columns != nil {
			exp.Columns = req.Columns
		}
		if req.Data != nil {
			exp.Data = req.Data
		}
		return nil
	})
}

// Modify implements Store.Modify
func (s *jsonStore) Modify(ctx context.Context, id string, actor string, fn func(exp *types.Experiment) error) (types.Experiment, error) {
	var updated types.Experiment
	err := s.backend.Update(ctx, func(data *storage.StoreData) error {
		i := indexOf(data.Experiments, id)
		if i < 0 {
			return fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}

		exp := data.Experiments[i]
		if err := fn(&exp); err != nil {
			return err
		}
		if err := validation.ValidateExperiment(exp); err != nil {
			return err
		}

		now := s.timeFunc().UTC()
		exp.ModifiedBy = actor
		exp.ModifiedAt = &now

		data.Experiments[i] = exp
		updated = exp
		return nil
	})
	if err != nil {
		return types.Experiment{}, err
	}
	return updated, nil
}

// Delete implements Store.Delete. The filtered document is written even when
// nothing matched.
func (s *jsonStore) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.backend.Update(ctx, func(data *storage.StoreData) error {
		kept := make([]types.Experiment, 0, len(data.Experiments))
		for _, exp := range data.Experiments {
			if exp.ID == id {
				removed = true
				continue
			}
			kept = append(kept, exp)
		}
		data.Experiments = kept
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Export implements Store.Export
func (s *jsonStore) Export(ctx context.Context, id string, format *formats.TableFormat) ([]byte, error) {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := export.Encode(&buf, exp, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Path implements Store.Path
func (s *jsonStore) Path() string {
	return s.backend.Path()
}

// Close implements Store.Close
func (s *jsonStore) Close() error {
	return s.backend.Close()
}

func indexOf(experiments []types.Experiment, id string) int {
	for i, exp := range experiments {
		if exp.ID == id {
			return i
		}
	}
	return -1
}
