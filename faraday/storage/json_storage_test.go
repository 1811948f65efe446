package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/arthur-debert/faraday/types"
)

func newMockStorage(t *testing.T) (*JSONStorage, *MockFileSystem, *MockFileLockFactory) {
	t.Helper()
	mockFS := NewMockFileSystem()
	mockLocks := NewMockFileLockFactory()
	s := NewJSONStorage("experiments.json", WithFileSystem(mockFS), WithFileLockFactory(mockLocks))
	return s, mockFS, mockLocks
}

func TestJSONStorageLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is an empty store", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)

		data, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(data.Experiments) != 0 || data.Experiments == nil {
			t.Errorf("expected empty non-nil collection, got %#v", data.Experiments)
		}
		if mockFS.FileExists("experiments.json") {
			t.Error("load must not create the file")
		}
	})

	t.Run("empty file is an empty store", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte("  \n"), 0644)

		data, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(data.Experiments) != 0 {
			t.Errorf("expected no experiments, got %d", len(data.Experiments))
		}
	})

	t.Run("current document shape", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte(`{"experiments":[{"id":"a","name":"one","columns":["Reference"],"data":[{"Reference":null}]}]}`), 0644)

		data, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if data.Legacy {
			t.Error("did not expect legacy flag")
		}
		if len(data.Experiments) != 1 || data.Experiments[0].Name != "one" {
			t.Fatalf("unexpected experiments: %+v", data.Experiments)
		}
		if v := data.Experiments[0].Data[0]["Reference"]; v != 0 {
			t.Errorf("expected null cell to load as 0, got %v", v)
		}
	})

	t.Run("legacy bare array", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte(`[{"name":"mobile","columns":["Frequency"],"data":[]}]`), 0644)

		data, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if !data.Legacy {
			t.Error("expected legacy flag")
		}
		if len(data.Experiments) != 1 || data.Experiments[0].Name != "mobile" {
			t.Errorf("unexpected experiments: %+v", data.Experiments)
		}
	})

	t.Run("corrupt file is storage unavailable", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte(`{"experiments": [`), 0644)

		_, err := s.Load(ctx)
		if !errors.Is(err, types.ErrStorageUnavailable) {
			t.Fatalf("expected ErrStorageUnavailable, got %v", err)
		}
	})

	t.Run("read error is storage unavailable", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte(`{"experiments":[]}`), 0644)
		mockFS.ReadFileError = errors.New("permission denied")

		_, err := s.Load(ctx)
		if !errors.Is(err, types.ErrStorageUnavailable) {
			t.Errorf("expected ErrStorageUnavailable, got %v", err)
		}
		if !errors.Is(err, mockFS.ReadFileError) {
			t.Errorf("expected underlying read error, got %v", err)
		}
	})
}

func TestJSONStorageUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("writes whole document", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)

		err := s.Update(ctx, func(data *StoreData) error {
			data.Experiments = append(data.Experiments, types.Experiment{ID: "a", Name: "first"})
			return nil
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}

		content, ok := mockFS.GetFileContent("experiments.json")
		if !ok {
			t.Fatal("expected file to be written")
		}
		var doc map[string][]map[string]interface{}
		if err := json.Unmarshal(content, &doc); err != nil {
			t.Fatalf("written file is not JSON: %v", err)
		}
		if len(doc["experiments"]) != 1 || doc["experiments"][0]["name"] != "first" {
			t.Errorf("unexpected document: %s", content)
		}
		if mockFS.FileExists("experiments.json.tmp") {
			t.Error("temp file should not exist after successful write")
		}
	})

	t.Run("legacy document is rewritten in current shape", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte(`[]`), 0644)

		if err := s.Update(ctx, func(*StoreData) error { return nil }); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		content, _ := mockFS.GetFileContent("experiments.json")
		data, err := decode(content)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if data.Legacy {
			t.Errorf("expected current shape, got %s", content)
		}
	})

	t.Run("callback error skips the write", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		boom := errors.New("boom")

		err := s.Update(ctx, func(data *StoreData) error {
			data.Experiments = append(data.Experiments, types.Experiment{ID: "a"})
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		if mockFS.FileExists("experiments.json") {
			t.Error("nothing should be written when the callback fails")
		}
	})

	t.Run("corrupt file is not overwritten", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json", []byte(`not json`), 0644)

		called := false
		err := s.Update(ctx, func(*StoreData) error {
			called = true
			return nil
		})
		if !errors.Is(err, types.ErrStorageUnavailable) {
			t.Fatalf("expected ErrStorageUnavailable, got %v", err)
		}
		if called {
			t.Error("callback must not run on a corrupt document")
		}
		content, _ := mockFS.GetFileContent("experiments.json")
		if string(content) != "not json" {
			t.Errorf("corrupt file was overwritten: %q", content)
		}
	})

	t.Run("rename failure cleans up temp file", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		mockFS.RenameError = errors.New("rename failed")

		err := s.Update(ctx, func(*StoreData) error { return nil })
		if !errors.Is(err, mockFS.RenameError) {
			t.Fatalf("expected rename error, got %v", err)
		}
		if mockFS.FileExists("experiments.json.tmp") {
			t.Error("temp file should be cleaned up after rename failure")
		}
	})
}

func TestJSONStorageLocking(t *testing.T) {
	ctx := context.Background()

	t.Run("lock released after operations", func(t *testing.T) {
		s, _, mockLocks := newMockStorage(t)
		lock := mockLocks.GetLock("experiments.json.lock")

		if _, err := s.Load(ctx); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if err := s.Update(ctx, func(*StoreData) error { return nil }); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		if lock.LockAttempts != 2 {
			t.Errorf("expected 2 lock attempts, got %d", lock.LockAttempts)
		}
		if lock.IsLocked() {
			t.Error("lock should be released after operation")
		}
	})

	t.Run("lock error surfaces", func(t *testing.T) {
		s, _, mockLocks := newMockStorage(t)
		lockErr := errors.New("lock failed")
		mockLocks.GetLock("experiments.json.lock").SetLockError(lockErr)

		if _, err := s.Load(ctx); !errors.Is(err, lockErr) {
			t.Errorf("expected lock error, got %v", err)
		}
	})

	t.Run("close keeps the lock file", func(t *testing.T) {
		s, mockFS, _ := newMockStorage(t)
		_ = mockFS.WriteFile("experiments.json.lock", nil, 0644)

		if err := s.Update(ctx, func(*StoreData) error { return nil }); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !mockFS.FileExists("experiments.json.lock") {
			t.Error("lock file must survive close")
		}
	})

	t.Run("concurrent updates are serialised", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "experiments.json")
		s := NewJSONStorage(path)
		defer func() { _ = s.Close() }()

		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				errs <- s.Update(ctx, func(data *StoreData) error {
					data.Experiments = append(data.Experiments, types.Experiment{ID: fmt.Sprintf("exp-%d", n)})
					return nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
		}

		data, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(data.Experiments) != writers {
			t.Errorf("expected %d experiments, got %d (lost updates)", writers, len(data.Experiments))
		}
	})
}
