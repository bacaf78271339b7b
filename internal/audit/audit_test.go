//go:build cgo

package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkRecord(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "audit", "requests.db"))
	require.NoError(t, err)
	defer sink.Close()

	sink.Record(Entry{ConnID: "conn_1", RequestID: "a", Command: "stub", OK: true, Duration: 1500 * time.Microsecond, BytesIn: 10, BytesOut: 20})
	sink.Record(Entry{ConnID: "conn_2", Command: "bogus", OK: false})

	n, err := sink.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "bogus", entries[0].Command)
	assert.False(t, entries[0].OK)
	assert.Empty(t, entries[0].RequestID)

	assert.Equal(t, "stub", entries[1].Command)
	assert.Equal(t, "a", entries[1].RequestID)
	assert.True(t, entries[1].OK)
	assert.Equal(t, 10, entries[1].BytesIn)
	assert.Equal(t, 20, entries[1].BytesOut)
	assert.InDelta(t, 1.5, float64(entries[1].Duration)/float64(time.Millisecond), 0.01)
}

func TestSinkConcurrentRecord(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)
	defer sink.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sink.Record(Entry{ConnID: fmt.Sprintf("conn_%d", i), Command: "print", OK: true})
		}(i)
	}
	wg.Wait()

	n, err := sink.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestSinkReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")

	sink, err := Open(path)
	require.NoError(t, err)
	sink.Record(Entry{ConnID: "conn_1", Command: "tree", OK: true})
	require.NoError(t, sink.Close())

	sink, err = Open(path)
	require.NoError(t, err)
	defer sink.Close()

	n, err := sink.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSinkCloseIdempotent(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	// Recording after close is silently dropped.
	assert.NotPanics(t, func() { sink.Record(Entry{ConnID: "c", Command: "print"}) })
}
