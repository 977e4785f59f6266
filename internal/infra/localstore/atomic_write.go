// internal/infra/localstore/atomic_write.go
package localstore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// atomicWriteFile writes data to a temp file in the same directory and renames it over filename,
// so readers (and watchers in other processes) never observe a partial value.
func atomicWriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("localstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("localstore: create temp: %w", err)
	}

	var ok bool
	defer func() {
		if !ok {
			if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
				log.Printf("[localstore] WARN: remove temp %s: %v", tmp.Name(), err)
			}
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("localstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("localstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("localstore: close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("localstore: chmod temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("localstore: rename: %w", err)
	}
	ok = true
	return nil
}
