package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/unix"

	"github.com/skepa-db/skepadb/internal/dberr"
)

// acquireLock takes an exclusive advisory lock on the database directory
//. The lock file's content is a fingerprint
// of the lock file's absolute path plus the holding pid, useful when a stale
// lock is inspected by hand after a crash.
func acquireLock(lockPath string) (*os.File, error) {
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIoError, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, dberr.New(dberr.KindDbLocked, "database directory is locked by another process")
	}

	abs, err := filepath.Abs(lockPath)
	if err != nil {
		abs = lockPath
	}
	fingerprint := xxhash.Sum64String(abs)
	content := fmt.Sprintf("pid=%d fingerprint=%x\n", os.Getpid(), fingerprint)

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, dberr.Wrap(dberr.KindIoError, err)
	}
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		_ = f.Close()
		return nil, dberr.Wrap(dberr.KindIoError, err)
	}

	return f, nil
}

func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}
