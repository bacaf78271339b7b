package socketserver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codefionn/langsock/internal/audit"
	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/protocol"
	"github.com/codefionn/langsock/internal/socketclient"
)

// shortSocketPath keeps socket paths below the sun_path limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lss")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// testHandlers answers every command with "<cmd>:<text>", and check with
// the text length, so responses identify their request.
func testHandlers() *dispatch.Registry {
	r := dispatch.NewRegistry()
	for _, cmd := range protocol.Commands() {
		cmd := cmd
		r.Register(cmd, dispatch.HandlerFunc(func(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
			if cmd == protocol.CommandCheck {
				return &protocol.Response{
					Text:  []byte(fmt.Sprintf("%d", len(req.Text))),
					Score: protocol.Int(len(req.Original)),
				}, nil
			}
			return &protocol.Response{Text: append([]byte(string(cmd)+":"), req.Text...)}, nil
		}))
	}
	return r
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) Codes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type memAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	closed  int
}

func (a *memAuditor) Record(e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *memAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

func (a *memAuditor) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

type testServer struct {
	server   *Server
	shutdown *Shutdown
	exits    *exitRecorder
	ready    *syncBuffer
	path     string
	served   chan error
}

func startServer(t *testing.T, handlers Dispatcher, configure func(*Options)) *testServer {
	t.Helper()

	ts := &testServer{
		exits:  &exitRecorder{},
		ready:  &syncBuffer{},
		path:   shortSocketPath(t),
		served: make(chan error, 1),
	}
	opts := Options{
		SocketPath:   ts.path,
		Permissions:  0600,
		WriteTimeout: 5 * time.Second,
		Ready:        ts.ready,
	}
	if configure != nil {
		configure(&opts)
	}
	if handlers == nil {
		handlers = testHandlers()
	}

	server, err := NewServer(opts, handlers)
	require.NoError(t, err)
	require.NoError(t, server.Listen(context.Background()))

	ts.server = server
	ts.shutdown = NewShutdown(server, ts.exits.exit)
	go func() { ts.served <- server.Serve() }()

	t.Cleanup(func() { ts.shutdown.Shutdown("test cleanup") })
	return ts
}

func (ts *testServer) dial(t *testing.T) *socketclient.Client {
	t.Helper()
	client, err := socketclient.NewClient(ts.path)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return client
}

func send(t *testing.T, client *socketclient.Client, req *protocol.Request) *protocol.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.Send(ctx, req)
	require.NoError(t, err)
	return resp
}

func sendRaw(t *testing.T, client *socketclient.Client, frame string) *protocol.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.SendRaw(ctx, []byte(frame))
	require.NoError(t, err)
	return resp
}
