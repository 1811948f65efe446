package faraday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arthur-debert/faraday/faraday/auth"
	"github.com/arthur-debert/faraday/faraday/storage"
	"github.com/arthur-debert/faraday/faraday/store"
	"github.com/arthur-debert/faraday/internal/telemetry"
)

// emptyDocument seeds a new experiments file
const emptyDocument = "{\n  \"experiments\": []\n}"

// Options configures Open
type Options struct {
	// DataDir is created when missing
	DataDir string

	// ExperimentsPath and CredentialsPath default to experiments.json and
	// creds.json inside DataDir
	ExperimentsPath string
	CredentialsPath string

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// FileSystem is used for seeding and storage; the OS by default
	FileSystem storage.FileSystem

	// LockFactory creates the cross-process lock; flock by default
	LockFactory storage.FileLockFactory
}

// Prepare creates the data directory and seeds the experiments and
// credentials files when they are missing.
func Prepare(opts Options) (Options, error) {
	if opts.FileSystem == nil {
		opts.FileSystem = storage.OSFileSystem{}
	}
	if opts.ExperimentsPath == "" {
		opts.ExperimentsPath = filepath.Join(opts.DataDir, "experiments.json")
	}
	if opts.CredentialsPath == "" {
		opts.CredentialsPath = filepath.Join(opts.DataDir, "creds.json")
	}

	fsys := opts.FileSystem
	for _, dir := range []string{opts.DataDir, filepath.Dir(opts.ExperimentsPath), filepath.Dir(opts.CredentialsPath)} {
		if dir == "" {
			continue
		}
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return opts, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if _, err := fsys.Stat(opts.ExperimentsPath); errors.Is(err, os.ErrNotExist) {
		if err := storage.WriteFileAtomic(fsys, opts.ExperimentsPath, []byte(emptyDocument), 0644); err != nil {
			return opts, fmt.Errorf("failed to seed %s: %w", opts.ExperimentsPath, err)
		}
	} else if err != nil {
		return opts, fmt.Errorf("failed to check %s: %w", opts.ExperimentsPath, err)
	}

	if _, err := auth.EnsureDefaults(fsys, opts.CredentialsPath); err != nil {
		return opts, err
	}
	return opts, nil
}

// Open prepares the data directory and returns a service over it
func Open(ctx context.Context, opts Options) (*Service, error) {
	opts, err := Prepare(opts)
	if err != nil {
		return nil, err
	}

	storageOpts := []storage.Option{storage.WithFileSystem(opts.FileSystem)}
	if opts.LockFactory != nil {
		storageOpts = append(storageOpts, storage.WithFileLockFactory(opts.LockFactory))
	}
	backend := storage.NewJSONStorage(opts.ExperimentsPath, storageOpts...)

	st, err := store.New(ctx, backend)
	if err != nil {
		return nil, err
	}

	authenticator := auth.NewFileAuthenticator(opts.CredentialsPath, auth.WithFileSystem(opts.FileSystem))

	var serviceOpts []ServiceOption
	if opts.Logger != nil {
		serviceOpts = append(serviceOpts, WithLogger(opts.Logger))
	}
	if opts.Metrics != nil {
		serviceOpts = append(serviceOpts, WithMetrics(opts.Metrics))
	}
	return New(st, authenticator, serviceOpts...), nil
}
