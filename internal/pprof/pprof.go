// Package pprof writes runtime profiles of a running server to files.
package pprof

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Config holds the pprof configuration
type Config struct {
	CPUProfile       string // written from Start until Stop
	HeapProfile      string // written on Stop
	GoroutineProfile string // written on Stop
	BlockProfile     string // written on Stop

	// Sample 1/n blocking events (default: 1)
	BlockProfileRate int
}

// Enabled reports whether any profiling is configured.
func (c Config) Enabled() bool {
	return c.CPUProfile != "" || c.HeapProfile != "" || c.GoroutineProfile != "" || c.BlockProfile != ""
}

// Handler manages pprof profiling
type Handler struct {
	config  Config
	cpuFile *os.File

	mu      sync.Mutex
	stopped bool
}

// NewHandler creates a new pprof handler with the given configuration
func NewHandler(config Config) *Handler {
	if config.BlockProfileRate == 0 {
		config.BlockProfileRate = 1
	}
	return &Handler{config: config}
}

// Start begins CPU profiling and block sampling, as configured.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.CPUProfile != "" {
		f, err := create(h.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
	}

	if h.config.BlockProfile != "" {
		runtime.SetBlockProfileRate(h.config.BlockProfileRate)
	}
	return nil
}

// Stop stops profiling and writes the profile files. Only the first call
// does anything.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true

	var errs []error
	if h.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := h.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		h.cpuFile = nil
	}

	profiles := []struct{ name, path string }{
		{"heap", h.config.HeapProfile},
		{"goroutine", h.config.GoroutineProfile},
		{"block", h.config.BlockProfile},
	}
	for _, p := range profiles {
		if p.path == "" {
			continue
		}
		if err := writeProfile(p.name, p.path); err != nil {
			errs = append(errs, err)
		}
	}
	if h.config.BlockProfile != "" {
		runtime.SetBlockProfileRate(0)
	}

	return errors.Join(errs...)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// writeProfile writes a named profile to a file
func writeProfile(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("profile %q not found", name)
	}
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer f.Close()
	if err := p.WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}
