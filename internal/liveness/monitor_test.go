package liveness

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/langsock/internal/consts"
)

type fakeProcess struct {
	alive  atomic.Bool
	probes atomic.Int32
}

func (p *fakeProcess) probe(int) bool {
	p.probes.Add(1)
	return p.alive.Load()
}

func TestMonitorDetectsGoneWithinInterval(t *testing.T) {
	proc := &fakeProcess{}
	proc.alive.Store(true)

	var gone atomic.Int32
	m := New(42, 20*time.Millisecond, proc.probe, func() { gone.Add(1) })

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, gone.Load())

	killed := time.Now()
	proc.alive.Store(false)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCompanionGone)
	case <-time.After(time.Second):
		t.Fatal("monitor did not notice the companion exit")
	}
	assert.Less(t, time.Since(killed), 250*time.Millisecond)
	assert.EqualValues(t, 1, gone.Load())
}

func TestMonitorStopsOnCancel(t *testing.T) {
	proc := &fakeProcess{}
	proc.alive.Store(true)

	var gone atomic.Int32
	m := New(42, 10*time.Millisecond, proc.probe, func() { gone.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}

	proc.alive.Store(false)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, gone.Load())
	assert.Positive(t, proc.probes.Load())
}

func TestMonitorOnGoneOnce(t *testing.T) {
	proc := &fakeProcess{}
	var gone atomic.Int32
	m := New(42, 5*time.Millisecond, proc.probe, func() { gone.Add(1) })

	for i := 0; i < 3; i++ {
		err := m.Run(context.Background())
		require.ErrorIs(t, err, ErrCompanionGone)
	}
	assert.EqualValues(t, 1, gone.Load())
}

func TestCheckNow(t *testing.T) {
	proc := &fakeProcess{}
	m := New(7, 0, proc.probe, nil)

	err := m.CheckNow()
	assert.ErrorIs(t, err, ErrCompanionGone)
	assert.Contains(t, err.Error(), "pid 7")

	proc.alive.Store(true)
	assert.NoError(t, m.CheckNow())
}

func TestDefaults(t *testing.T) {
	m := New(os.Getpid(), 0, nil, nil)
	assert.Equal(t, consts.DefaultMonitorInterval, m.Interval())
	assert.Equal(t, os.Getpid(), m.PID())
	assert.NoError(t, m.CheckNow())
}
