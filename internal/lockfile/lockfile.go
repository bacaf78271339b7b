// Package lockfile provides file-based locking for single instance enforcement
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/procutil"
)

var (
	// ErrLocked is returned when a running process holds the lock.
	ErrLocked = errors.New("lock is held by a running process")
)

// Lockfile is an O_EXCL lock file holding the owner's PID. A lock whose owner
// no longer runs is stale and gets replaced.
type Lockfile struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	pid    int
	locked bool
}

// New creates a new lockfile instance
func New(path string) *Lockfile {
	return &Lockfile{
		path: path,
	}
}

// ForSocket returns the lockfile guarding socketPath.
func ForSocket(socketPath string) *Lockfile {
	return New(socketPath + ".lock")
}

// TryAcquire attempts to acquire the lock
func (l *Lockfile) TryAcquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return nil
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := create(l.path)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lockfile: %w", err)
		}

		stale, reason := l.checkStale()
		if !stale {
			return fmt.Errorf("%w: %s", ErrLocked, reason)
		}
		if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, removeErr)
		}

		// A racing process may win between remove and create.
		file, err = create(l.path)
		if err != nil {
			if os.IsExist(err) {
				return fmt.Errorf("%w: lockfile was recreated concurrently", ErrLocked)
			}
			return fmt.Errorf("failed to create lockfile after removing stale one: %w", err)
		}
	}

	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.releaseLocked()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.releaseLocked()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}

	return nil
}

func create(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// checkStale checks if the lockfile is stale (owner not running)
func (l *Lockfile) checkStale() (bool, string) {
	pid, err := ReadOwner(l.path)
	if err != nil {
		// A freshly created lockfile may not have its PID written yet.
		if info, statErr := os.Stat(l.path); statErr == nil && time.Since(info.ModTime()) < consts.Timeout5Seconds {
			return false, "lockfile is being written by another process"
		}
		return true, err.Error()
	}
	if pid == os.Getpid() {
		return false, fmt.Sprintf("lock is held by this process (PID %d)", pid)
	}

	running, reason := procutil.Status(pid)
	if !running {
		return true, reason
	}
	return false, fmt.Sprintf("process with PID %d is running", pid)
}

// ReadOwner returns the PID recorded in the lockfile at path.
func ReadOwner(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("cannot read lockfile: %w", err)
	}

	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in lockfile")
	}
	return pid, nil
}

// Release releases the lock. Calling it more than once is a no-op.
func (l *Lockfile) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked()
}

func (l *Lockfile) releaseLocked() error {
	if !l.locked {
		return nil
	}

	var err error
	if l.file != nil {
		if closeErr := l.file.Close(); closeErr != nil {
			err = closeErr
		}
		l.file = nil
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err != nil {
			err = fmt.Errorf("%v; failed to remove lockfile: %w", err, removeErr)
		} else {
			err = fmt.Errorf("failed to remove lockfile: %w", removeErr)
		}
	}

	l.locked = false
	return err
}

// PID returns the PID that acquired the lock
func (l *Lockfile) PID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pid
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
