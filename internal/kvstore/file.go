package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// fileStore keeps all keys in a single JSON document, rewritten atomically
// on every mutation. Without a process lock it assumes a single process owns
// the file.
type fileStore struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu   sync.Mutex
	lock *flock.Flock
}

// FileOption configures a file-backed Store.
type FileOption func(*fileStore)

// WithProcessLock guards every access with an advisory lock on path+".lock",
// so a CLI and a running server can share the file. It only applies to the
// OS filesystem.
func WithProcessLock() FileOption {
	return func(f *fileStore) {
		f.lock = flock.New(f.path + ".lock")
	}
}

// NewFileStore creates a Store persisted as JSON at path on the given filesystem.
func NewFileStore(fs afero.Fs, path string, opts ...FileOption) Store {
	f := &fileStore{
		fs:   fs,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// acquire takes the in-process mutex and, when configured, the file lock.
// Readers share the file lock.
func (f *fileStore) acquire(exclusive bool) (func(), error) {
	f.mu.Lock()
	if f.lock == nil {
		return f.mu.Unlock, nil
	}

	lockFn := f.lock.RLock
	if exclusive {
		lockFn = f.lock.Lock
	}
	if err := lockFn(); err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("failed to lock %s: %w", f.lock.Path(), err)
	}
	return func() {
		_ = f.lock.Unlock()
		f.mu.Unlock()
	}, nil
}

func (f *fileStore) Get(_ context.Context, key string) (string, bool, error) {
	release, err := f.acquire(false)
	if err != nil {
		return "", false, err
	}
	defer release()

	entries, err := f.load()
	if err != nil {
		return "", false, err
	}
	e, ok := entries[key]
	if !ok || e.expired(f.now()) {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (f *fileStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	release, err := f.acquire(true)
	if err != nil {
		return err
	}
	defer release()

	entries, err := f.load()
	if err != nil {
		return err
	}
	entries[key] = newEntry(value, ttl, f.now())
	return f.save(entries)
}

func (f *fileStore) Delete(_ context.Context, key string) error {
	release, err := f.acquire(true)
	if err != nil {
		return err
	}
	defer release()

	entries, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return f.save(entries)
}

// load reads the document, dropping expired keys.
func (f *fileStore) load() (map[string]entry, error) {
	entries := make(map[string]entry)

	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read key/value file %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse key/value file %s: %w", f.path, err)
	}

	now := f.now()
	for k, e := range entries {
		if e.expired(now) {
			delete(entries, k)
		}
	}
	return entries, nil
}

// save writes the document through a temporary file and rename.
func (f *fileStore) save(entries map[string]entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key/value data: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := f.fs.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = f.fs.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := f.fs.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", f.path, err)
	}
	return nil
}
