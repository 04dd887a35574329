// Package statestore persists the state document as a single owner-only
// JSON file. Writes go to a temp file in the target directory, are fsynced,
// then renamed over the destination, so a reader never observes a partial
// document. Cross-process writers serialize through an advisory lock file.
package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/davidahmann/hoststate/core/statedoc"
)

// FileMode is owner read/write only, applied before any content is written.
const FileMode os.FileMode = 0o600

// ErrNotFound reports that no state file exists yet. It is a valid state
// ("never scanned"), not a failure.
var ErrNotFound = errors.New("no state document persisted")

// CorruptionError reports a state file that exists but cannot be parsed.
// The store never deletes the corrupt file; the caller decides.
type CorruptionError struct {
	Path  string
	Cause error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state file %s is corrupt: %v", e.Path, e.Cause)
}

func (e *CorruptionError) Unwrap() error {
	return e.Cause
}

type Store struct {
	path           string
	lockTimeout    time.Duration
	lockRetry      time.Duration
	lockStaleAfter time.Duration
}

type Option func(*Store)

// WithLockTimeout bounds how long a writer waits for the advisory lock.
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = timeout
	}
}

func New(path string, opts ...Option) *Store {
	store := &Store{
		path:           path,
		lockTimeout:    5 * time.Second,
		lockRetry:      10 * time.Millisecond,
		lockStaleAfter: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) Path() string {
	return s.path
}

// Read loads and decodes the persisted document. An absent file is
// ErrNotFound; unparseable content is a CorruptionError; version problems
// surface as statedoc.SchemaError.
func (s *Store) Read() (statedoc.Document, error) {
	// #nosec G304 -- state path is explicit local configuration.
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return statedoc.Document{}, ErrNotFound
		}
		return statedoc.Document{}, fmt.Errorf("read state file: %w", err)
	}
	document, err := statedoc.Decode(raw)
	if err != nil {
		var schemaErr *statedoc.SchemaError
		if errors.As(err, &schemaErr) {
			return statedoc.Document{}, err
		}
		return statedoc.Document{}, &CorruptionError{Path: s.path, Cause: err}
	}
	return document, nil
}

// Write persists the document atomically under the advisory lock.
func (s *Store) Write(document statedoc.Document) error {
	return s.withLock(func() error {
		return s.writeAtomic(document)
	})
}

// Mutate runs a read-modify-write cycle under one lock acquisition. The
// callback receives the current document (or a zero document when none
// exists) and returns the replacement; returning an error aborts without
// touching the file.
func (s *Store) Mutate(fn func(current statedoc.Document, exists bool) (statedoc.Document, error)) (statedoc.Document, error) {
	var result statedoc.Document
	err := s.withLock(func() error {
		current, readErr := s.Read()
		exists := true
		if readErr != nil {
			if !errors.Is(readErr, ErrNotFound) {
				return readErr
			}
			exists = false
		}
		next, mutateErr := fn(current, exists)
		if mutateErr != nil {
			return mutateErr
		}
		if writeErr := s.writeAtomic(next); writeErr != nil {
			return writeErr
		}
		result = next
		return nil
	})
	if err != nil {
		return statedoc.Document{}, err
	}
	return result, nil
}

func (s *Store) writeAtomic(document statedoc.Document) error {
	content, err := document.Encode()
	if err != nil {
		return err
	}

	parent := filepath.Dir(s.path)
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	base := filepath.Base(s.path)
	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	// Restrict permissions before the document lands in the file.
	if err := tempFile.Chmod(FileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(s.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, s.path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	cleanup = false

	// #nosec G304 -- parent directory derives from the configured state path.
	if dirHandle, err := os.Open(parent); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}
