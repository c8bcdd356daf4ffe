// Package jsonfile provides JSON file-backed chat stores. Each store owns one
// document guarded by an in-process lock and an flock on a sibling lock file,
// so several processes can share a data directory.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/hay-kot/parley/internal/core/chat"
)

type document struct {
	path string
	mu   sync.RWMutex
}

// view loads the document into v under a shared lock.
func (d *document) view(op string, v any) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	err := d.withFileLock(syscall.LOCK_SH, func() error {
		return d.load(v)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", chat.ErrStorageUnavailable, op, err)
	}
	return nil
}

// update loads the document into v, applies fn and writes the result back
// when fn reports a change. The whole cycle holds an exclusive lock.
func (d *document) update(op string, v any, fn func() bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.withFileLock(syscall.LOCK_EX, func() error {
		if err := d.load(v); err != nil {
			return err
		}
		if !fn() {
			return nil
		}
		return d.save(v)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", chat.ErrStorageUnavailable, op, err)
	}
	return nil
}

func (d *document) withFileLock(lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	f, err := os.OpenFile(d.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// load reads the document. A missing or empty file leaves v untouched.
func (d *document) load(v any) error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(d.path), err)
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(d.path), err)
	}
	return nil
}

// save writes the document atomically via write-to-temp-then-rename.
func (d *document) save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(d.path), err)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, d.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
