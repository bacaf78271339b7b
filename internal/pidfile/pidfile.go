// Package pidfile records the PID of a running server so that scripts can
// find and signal it.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codefionn/langsock/internal/procutil"
)

// ErrRunning is returned by Write when the file names another live process.
var ErrRunning = errors.New("pidfile belongs to a running process")

// Pidfile represents a PID file
type Pidfile struct {
	path string
	pid  int
}

// New creates a PID file instance for the current process.
func New(path string) *Pidfile {
	return &Pidfile{path: path, pid: os.Getpid()}
}

// Write records the PID. A file left behind by a process that has exited is
// replaced; one naming a live process other than this one is not.
func (p *Pidfile) Write() error {
	if existing, err := p.Read(); err == nil && existing != p.pid && procutil.IsRunning(existing) {
		return fmt.Errorf("%w: %s holds pid %d", ErrRunning, p.path, existing)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pid-*")
	if err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(p.pid) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Read reads the PID from the PID file
func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}

	return pid, nil
}

// Remove removes the PID file if it still names this process.
func (p *Pidfile) Remove() error {
	pid, err := p.Read()
	if err != nil || pid != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the PID file path
func (p *Pidfile) Path() string {
	return p.path
}
