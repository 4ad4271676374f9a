package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileStorage is a [Storage] persisted as a single JSON object on disk.
//
// Every Set or Remove rewrites the file atomically (temp file + rename).
// Reads are served from memory. [FileStorage.Watch] keeps the in-memory copy
// in sync with changes made to the file by other processes.
type FileStorage struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]string
}

// OpenFile opens the storage file at path, loading its current contents.
// A missing file is treated as empty; it is created on the first write.
func OpenFile(path string, logger *zap.Logger) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &FileStorage{
		path:   filepath.Clean(path),
		logger: logger,
		values: make(map[string]string),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the storage file path.
func (f *FileStorage) Path() string {
	return f.path
}

// Get implements [Storage].
func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

// Set implements [Storage].
func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := copyValues(f.values)
	next[key] = value
	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// Remove implements [Storage].
func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.values[key]; !ok {
		return nil
	}
	next := copyValues(f.values)
	delete(next, key)
	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// Reload re-reads the storage file, replacing the in-memory values.
// A missing file resets the storage to empty.
func (f *FileStorage) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.mu.Lock()
			f.values = make(map[string]string)
			f.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read storage file: %w", err)
	}

	values := make(map[string]string)
	if len(data) > 0 {
		if err := sonic.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("parse storage file %s: %w", f.path, err)
		}
	}

	f.mu.Lock()
	f.values = values
	f.mu.Unlock()
	return nil
}

// Watch starts a background goroutine reloading the storage whenever the
// file is written, created, renamed or removed by anyone. It returns once
// the watch is established and stops when ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// atomic replacements (rename over the file) are observed.
func (f *FileStorage) Watch(ctx context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create storage watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch storage directory %s: %w", dir, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				if err := f.Reload(); err != nil {
					f.logger.Warn("storage reload failed", zap.String("path", f.path), zap.Error(err))
					continue
				}
				f.logger.Debug("storage reloaded", zap.String("path", f.path), zap.String("op", ev.Op.String()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("storage watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

// write persists values atomically. Caller holds f.mu.
func (f *FileStorage) write(values map[string]string) error {
	data, err := sonic.ConfigStd.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp storage file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close storage file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}

func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
