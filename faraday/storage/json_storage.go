package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arthur-debert/faraday/types"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// JSONStorage implements Storage using a single JSON file
type JSONStorage struct {
	filePath    string
	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock
	lockManager *LockManager
}

// Option configures a JSONStorage
type Option func(*JSONStorage)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(s *JSONStorage) {
		s.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(s *JSONStorage) {
		s.lockFactory = factory
	}
}

// NewJSONStorage creates a storage backed by the JSON document at filePath.
// The file does not need to exist yet.
func NewJSONStorage(filePath string, opts ...Option) *JSONStorage {
	s := &JSONStorage{
		filePath:    filePath,
		lockManager: NewLockManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = OSFileSystem{}
	}
	if s.lockFactory == nil {
		s.lockFactory = FlockFactory{}
	}
	s.fileLock = s.lockFactory.New(filePath + ".lock")
	return s
}

// Path implements Storage.Path
func (s *JSONStorage) Path() string {
	return s.filePath
}

// Load implements Storage.Load
func (s *JSONStorage) Load(ctx context.Context) (*StoreData, error) {
	var data *StoreData
	err := s.lockManager.Execute(ReadOperation, func() error {
		return s.withFileLock(ctx, true, func() error {
			var err error
			data, err = s.read()
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Update implements Storage.Update
func (s *JSONStorage) Update(ctx context.Context, fn func(data *StoreData) error) error {
	return s.lockManager.Execute(WriteOperation, func() error {
		return s.withFileLock(ctx, false, func() error {
			data, err := s.read()
			if err != nil {
				return err
			}
			if err := fn(data); err != nil {
				return err
			}
			return s.write(data)
		})
	})
}

// Close implements Storage.Close. The lock file is left in place because
// other processes may hold a lock on it.
func (s *JSONStorage) Close() error {
	return nil
}

// withFileLock runs fn while holding the cross-process file lock, shared
// for reads and exclusive for writes
func (s *JSONStorage) withFileLock(ctx context.Context, shared bool, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	if err := s.acquireLock(ctx, shared); err != nil {
		return err
	}
	defer func() { _ = s.fileLock.Unlock() }()

	return fn()
}

// acquireLock acquires the file lock with retry logic
func (s *JSONStorage) acquireLock(ctx context.Context, shared bool) error {
	try := s.fileLock.TryLockContext
	if shared {
		try = s.fileLock.TryRLockContext
	}
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := try(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// read loads the document. Caller must hold the locks.
func (s *JSONStorage) read() (*StoreData, error) {
	if _, err := s.fs.Stat(s.filePath); errors.Is(err, os.ErrNotExist) {
		return &StoreData{Experiments: []types.Experiment{}}, nil
	}

	raw, err := s.fs.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", types.ErrStorageUnavailable, s.filePath, err)
	}
	return decode(raw)
}

// decode parses either the current {"experiments": [...]} document or the
// legacy bare array.
func decode(raw []byte) (*StoreData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &StoreData{Experiments: []types.Experiment{}}, nil
	}

	data := &StoreData{}
	if trimmed[0] == '[' {
		data.Legacy = true
		if err := json.Unmarshal(trimmed, &data.Experiments); err != nil {
			return nil, fmt.Errorf("%w: failed to parse JSON: %w", types.ErrStorageUnavailable, err)
		}
	} else if err := json.Unmarshal(trimmed, data); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %w", types.ErrStorageUnavailable, err)
	}

	if data.Experiments == nil {
		data.Experiments = []types.Experiment{}
	}
	return data, nil
}

// write persists the document atomically. Caller must hold the locks.
func (s *JSONStorage) write(data *StoreData) error {
	if data.Experiments == nil {
		data.Experiments = []types.Experiment{}
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := WriteFileAtomic(s.fs, s.filePath, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.filePath, err)
	}
	data.Legacy = false
	return nil
}
