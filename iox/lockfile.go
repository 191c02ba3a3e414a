package iox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Lock acquisition tuning. A holder keeps the lock for a single short
// read-modify-write, so contention windows are milliseconds.
const (
	lockRetryInterval = 10 * time.Millisecond
	lockTimeout       = 5 * time.Second
	// lockStaleAfter is the age past which a lock whose owner process is
	// gone is considered abandoned and broken.
	lockStaleAfter = 30 * time.Second
)

// ErrLockTimeout is returned when a lock cannot be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for lock file")

// FileLock is a pid-stamped exclusive lock file. It serializes one
// critical section across processes. Never nested; each section performs
// exactly one acquire/release cycle.
type FileLock struct {
	path string
}

// AcquireLock takes the exclusive lock at path, retrying until a timeout.
// A lock left behind by a dead process is broken once it is old enough to
// be considered abandoned. Parent directories are created as needed.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	deadline := time.Now().Add(lockTimeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock file %s: %w", path, errors.Join(werr, cerr))
			}
			return &FileLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		breakIfStale(path)

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		time.Sleep(lockRetryInterval)
	}
}

// Release removes the lock file. Safe to call once per acquire.
func (l *FileLock) Release() {
	_ = os.Remove(l.path)
}

// breakIfStale removes a lock whose owning process no longer exists and
// whose file is older than lockStaleAfter. Both conditions are required so
// a freshly-created lock from a pid we cannot signal is left alone.
func breakIfStale(path string) {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) < lockStaleAfter {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Unreadable owner: age alone decides.
		_ = os.Remove(path)
		return
	}
	if !processAlive(pid) {
		_ = os.Remove(path)
	}
}

// processAlive reports whether a process with the given pid exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
