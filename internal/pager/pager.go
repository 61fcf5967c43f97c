// Package pager owns the on-disk directory layout and the
// write-temp-then-rename primitive every snapshot writer (catalog, index,
// ids file) builds on so readers never observe a partial file.
package pager

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the fixed set of paths under one database directory.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) CatalogPath() string { return filepath.Join(l.Root, "catalog") }
func (l Layout) WalPath() string     { return filepath.Join(l.Root, "wal") }
func (l Layout) LockPath() string    { return filepath.Join(l.Root, "LOCK") }

func (l Layout) TablesDir() string { return filepath.Join(l.Root, "tables") }
func (l Layout) IndexesDir() string { return filepath.Join(l.Root, "indexes") }

func (l Layout) HeapPath(tableID uint64) string {
	return filepath.Join(l.TablesDir(), fmt.Sprintf("%d.heap", tableID))
}

func (l Layout) IdsPath(tableID uint64) string {
	return filepath.Join(l.TablesDir(), fmt.Sprintf("%d.ids", tableID))
}

func (l Layout) TableIndexDir(tableID uint64) string {
	return filepath.Join(l.IndexesDir(), fmt.Sprintf("%d", tableID))
}

func (l Layout) IndexPath(tableID, indexID uint64) string {
	return filepath.Join(l.TableIndexDir(tableID), fmt.Sprintf("%d.idx", indexID))
}

// EnsureDirs creates the directory skeleton (tables/, indexes/) under Root.
func (l Layout) EnsureDirs() error {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(l.TablesDir(), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(l.IndexesDir(), 0o755)
}

// WriteAtomic writes data to path via write-temp-then-rename: readers of
// path never see a partially-written file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("pager: atomic rename: %w", err)
	}
	ok = true
	return nil
}

// ReadFile reads path whole; a missing file is reported via os.IsNotExist
// on the returned error, left to callers to special-case (fresh database).
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
