//go:build !windows && !js && !wasip1

package storage

import (
	"fmt"
	"os"
	"syscall"
)

// fileLock is the advisory cross-process exclusion for one database file,
// held via flock on Unix.
type fileLock struct {
	file *os.File
}

// lockFile takes an exclusive, non-blocking flock on path's ".lock"
// sidecar, failing immediately if another process already holds it.
func lockFile(path string) (*fileLock, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("filelock: cannot open lock file: %w", err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("filelock: database %q is locked by another process", path)
	}

	return &fileLock{file: f}, nil
}

// unlock releases the flock and removes the sidecar file.
func (fl *fileLock) unlock() error {
	if fl.file == nil {
		return nil
	}
	syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN)
	name := fl.file.Name()
	err := fl.file.Close()
	os.Remove(name)
	return err
}
