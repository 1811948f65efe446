// Package auth checks usernames and passwords against the credentials
// document that lives next to the experiments file.
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/arthur-debert/faraday/faraday/storage"
	"github.com/arthur-debert/faraday/types"
)

// Authenticator verifies a username and password
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) error
}

// DefaultCredentials are seeded into a new data directory
var DefaultCredentials = []types.Credential{
	{Username: "admin", Password: "admin123"},
	{Username: "user", Password: "password123"},
}

// document is the on-disk credentials shape
type document struct {
	Users []types.Credential `json:"users"`
}

// FileAuthenticator reads the credentials document on every call so edits
// made while the server runs take effect immediately.
type FileAuthenticator struct {
	path string
	fs   storage.FileSystem
}

// Option configures a FileAuthenticator
type Option func(*FileAuthenticator)

// WithFileSystem sets a custom file system implementation
func WithFileSystem(fs storage.FileSystem) Option {
	return func(a *FileAuthenticator) {
		a.fs = fs
	}
}

// NewFileAuthenticator creates an authenticator backed by the file at path
func NewFileAuthenticator(path string, opts ...Option) *FileAuthenticator {
	a := &FileAuthenticator{path: path}
	for _, opt := range opts {
		opt(a)
	}
	if a.fs == nil {
		a.fs = storage.OSFileSystem{}
	}
	return a
}

// Path returns the credentials document location
func (a *FileAuthenticator) Path() string {
	return a.path
}

// Authenticate implements Authenticator
func (a *FileAuthenticator) Authenticate(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: missing username", types.ErrUnauthorized)
	}

	users, err := a.Users()
	if err != nil {
		return err
	}

	for _, cred := range users {
		if cred.Username != username {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(cred.Password), []byte(password)) == 1 {
			return nil
		}
		break
	}
	return fmt.Errorf("%w: invalid credentials for %q", types.ErrUnauthorized, username)
}

// Users returns the credentials in the document. A missing file has no users.
func (a *FileAuthenticator) Users() ([]types.Credential, error) {
	raw, err := a.fs.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read credentials: %w", types.ErrStorageUnavailable, err)
	}
	return decode(raw)
}

// decode accepts {"users": [...]} and the older flat {"name": "password"} map
func decode(raw []byte) ([]types.Credential, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to parse credentials: %w", types.ErrStorageUnavailable, err)
	}

	if _, ok := probe["users"]; ok {
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: failed to parse credentials: %w", types.ErrStorageUnavailable, err)
		}
		return doc.Users, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: failed to parse credentials: %w", types.ErrStorageUnavailable, err)
	}
	users := make([]types.Credential, 0, len(flat))
	for name, password := range flat {
		users = append(users, types.Credential{Username: name, Password: password})
	}
	return users, nil
}

// EnsureDefaults writes the default credentials to path unless a file is
// already there. It reports whether the file was created.
func EnsureDefaults(fsys storage.FileSystem, path string) (bool, error) {
	if fsys == nil {
		fsys = storage.OSFileSystem{}
	}
	if _, err := fsys.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to check %s: %w", path, err)
	}

	encoded, err := json.MarshalIndent(document{Users: DefaultCredentials}, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := storage.WriteFileAtomic(fsys, path, encoded, 0600); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
