// Package liveness watches a companion process and reports when it is gone.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/procutil"
)

// ErrCompanionGone is returned when the companion process no longer exists.
var ErrCompanionGone = errors.New("companion process is not running")

// Probe reports whether pid exists.
type Probe func(pid int) bool

// Monitor polls a companion PID on a fixed interval.
type Monitor struct {
	pid      int
	interval time.Duration
	probe    Probe
	onGone   func()
	goneOnce sync.Once
	log      *logger.Logger
}

// New creates a Monitor. A zero interval uses consts.DefaultMonitorInterval,
// a nil probe uses procutil.IsRunning.
func New(pid int, interval time.Duration, probe Probe, onGone func()) *Monitor {
	if interval <= 0 {
		interval = consts.DefaultMonitorInterval
	}
	if probe == nil {
		probe = procutil.IsRunning
	}
	if onGone == nil {
		onGone = func() {}
	}
	return &Monitor{
		pid:      pid,
		interval: interval,
		probe:    probe,
		onGone:   onGone,
		log:      logger.Global().WithPrefix("liveness"),
	}
}

// PID returns the monitored process id.
func (m *Monitor) PID() int {
	return m.pid
}

// Interval returns the polling interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// CheckNow probes the companion immediately.
func (m *Monitor) CheckNow() error {
	if !m.probe(m.pid) {
		return fmt.Errorf("%w: pid %d", ErrCompanionGone, m.pid)
	}
	return nil
}

// Run blocks until the companion disappears or ctx is cancelled. A cancelled
// ctx is a normal stop and returns nil. onGone is called at most once, and
// never after ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Debug("watching pid %d every %v", m.pid, m.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if m.probe(m.pid) {
				continue
			}
			m.log.Info("companion process %d is gone", m.pid)
			m.goneOnce.Do(m.onGone)
			return fmt.Errorf("%w: pid %d", ErrCompanionGone, m.pid)
		}
	}
}
