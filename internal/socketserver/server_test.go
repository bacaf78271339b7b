package socketserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/protocol"
	"github.com/codefionn/langsock/internal/socketclient"
)

func TestServerStubBogusValidOnOneConnection(t *testing.T) {
	ts := startServer(t, nil, nil)
	client := ts.dial(t)

	source := []byte("function f(a: number): number { return a }")
	resp := send(t, client, socketclient.NewRequest(protocol.CommandStub, source))
	assert.Equal(t, "stubResponse", resp.Type)
	assert.Equal(t, append([]byte("stub:"), source...), resp.Text)

	resp = sendRaw(t, client, `{"cmd":"bogus","text":""}`)
	assert.Equal(t, protocol.ResponseTypeError, resp.Type)
	assert.Contains(t, resp.Message, "unknown command bogus")

	resp = send(t, client, socketclient.NewRequest(protocol.CommandTree, []byte("x")))
	assert.Equal(t, "treeResponse", resp.Type)
	assert.Equal(t, "tree:x", string(resp.Text))
}

func TestServerReadyLineAndPermissions(t *testing.T) {
	ts := startServer(t, nil, nil)

	assert.Equal(t, "Listening on "+ts.server.SocketPath()+"\n", ts.ready.String())

	info, err := os.Stat(ts.path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSocket)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Equal(t, []string{listenerID}, ts.server.Sockets().IDs())
}

func TestServerProtocolErrorsKeepConnectionOpen(t *testing.T) {
	ts := startServer(t, nil, func(o *Options) { o.MaxFrameSize = 1024 })
	client := ts.dial(t)

	tests := []struct {
		name    string
		frame   string
		message string
	}{
		{"malformed json", `{"cmd":`, "malformed frame"},
		{"missing cmd", `{"text":""}`, "missing cmd"},
		{"invalid base64", `{"cmd":"print","text":"***"}`, "invalid text payload"},
		{"too large", `{"cmd":"print","text":"` + strings.Repeat("A", 4096) + `"}`, "maximum size of 1024 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sendRaw(t, client, tt.frame)
			assert.False(t, resp.OK())
			assert.Contains(t, resp.Message, tt.message)

			resp = send(t, client, socketclient.NewRequest(protocol.CommandPrint, []byte("ok")))
			assert.Equal(t, "print:ok", string(resp.Text))
		})
	}
}

func TestServerEchoesRequestIDOnErrors(t *testing.T) {
	ts := startServer(t, nil, nil)
	client := ts.dial(t)

	resp := sendRaw(t, client, `{"cmd":"bogus","request_id":"abc"}`)
	assert.Equal(t, "abc", resp.RequestID)

	resp = sendRaw(t, client, `{"cmd":"tree","text":"%%","request_id":"def"}`)
	assert.Equal(t, "def", resp.RequestID)
}

func TestServerHandlerPanicIsIsolated(t *testing.T) {
	handlers := testHandlers()
	handlers.Register(protocol.CommandWeave, dispatch.HandlerFunc(func(context.Context, *protocol.Request) (*protocol.Response, error) {
		panic("nettle missing")
	}))
	ts := startServer(t, handlers, nil)

	client := ts.dial(t)
	other := ts.dial(t)

	resp := send(t, client, socketclient.NewWeaveRequest([]byte("a"), nil, 0))
	assert.False(t, resp.OK())
	assert.Equal(t, "handler weave panicked: nettle missing", resp.Message)

	assert.Equal(t, "print:1", string(send(t, client, socketclient.NewRequest(protocol.CommandPrint, []byte("1"))).Text))
	assert.Equal(t, "print:2", string(send(t, other, socketclient.NewRequest(protocol.CommandPrint, []byte("2"))).Text))
}

func TestServerConcurrentClients(t *testing.T) {
	ts := startServer(t, nil, nil)

	const clients = 24
	const perClient = 10

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := socketclient.NewClient(ts.path)
			if !assert.NoError(t, err) {
				return
			}
			if !assert.NoError(t, client.Connect(context.Background())) {
				return
			}
			defer client.Close()

			for j := 0; j < perClient; j++ {
				text := []byte(fmt.Sprintf("client-%d-req-%d-%s", i, j, strings.Repeat("x", i*100)))
				resp, err := client.Send(context.Background(), socketclient.NewRequest(protocol.CommandUsages, text))
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, append([]byte("usages:"), text...), resp.Text)
			}
		}(i)
	}
	wg.Wait()
}

func TestServerLargeCheckAndSmallPrint(t *testing.T) {
	ts := startServer(t, nil, nil)
	a := ts.dial(t)
	b := ts.dial(t)

	large := bytes.Repeat([]byte("let value: _hole_ = compute();\n"), 100_000)
	original := []byte("let value: number = compute();\n")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		resp, err := a.Send(context.Background(), socketclient.NewCheckRequest(large, original))
		if assert.NoError(t, err) {
			assert.Equal(t, "checkResponse", resp.Type)
			assert.Equal(t, fmt.Sprintf("%d", len(large)), string(resp.Text))
			if assert.NotNil(t, resp.Score) {
				assert.Equal(t, len(original), *resp.Score)
			}
		}
	}()
	go func() {
		defer wg.Done()
		resp, err := b.Send(context.Background(), socketclient.NewRequest(protocol.CommandPrint, []byte("x")))
		if assert.NoError(t, err) {
			assert.Equal(t, "printResponse", resp.Type)
			assert.Equal(t, "print:x", string(resp.Text))
		}
	}()
	wg.Wait()
}

func TestServerSplitFrameDelivery(t *testing.T) {
	ts := startServer(t, nil, nil)

	conn, err := net.Dial("unix", ts.path)
	require.NoError(t, err)
	defer conn.Close()

	text := base64.StdEncoding.EncodeToString([]byte("partial"))
	frame := []byte(`{"cmd":"stub","text":"` + text + `"}` + "\n")
	for _, b := range frame {
		_, err := conn.Write([]byte{b})
		require.NoError(t, err)
	}

	fr := protocol.NewFrameReader(conn, 0)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	out, err := fr.ReadFrame()
	require.NoError(t, err)
	resp, err := protocol.DecodeResponse(out)
	require.NoError(t, err)
	assert.Equal(t, "stub:partial", string(resp.Text))
}

func TestServerPipelinedRequestsStayOrdered(t *testing.T) {
	ts := startServer(t, nil, nil)

	conn, err := net.Dial("unix", ts.path)
	require.NoError(t, err)
	defer conn.Close()

	var batch []byte
	for i := 0; i < 20; i++ {
		frame, err := protocol.EncodeRequest(&protocol.Request{Command: protocol.CommandPrint, Text: []byte(fmt.Sprint(i))})
		require.NoError(t, err)
		batch = append(batch, frame...)
	}
	_, err = conn.Write(batch)
	require.NoError(t, err)

	fr := protocol.NewFrameReader(conn, 0)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for i := 0; i < 20; i++ {
		out, err := fr.ReadFrame()
		require.NoError(t, err)
		resp, err := protocol.DecodeResponse(out)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("print:%d", i), string(resp.Text))
	}
}

func TestServerMaxConnections(t *testing.T) {
	ts := startServer(t, nil, func(o *Options) { o.MaxConnections = 1 })
	first := ts.dial(t)
	send(t, first, socketclient.NewRequest(protocol.CommandPrint, nil))

	conn, err := net.Dial("unix", ts.path)
	require.NoError(t, err)
	defer conn.Close()

	fr := protocol.NewFrameReader(conn, 0)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	out, err := fr.ReadFrame()
	require.NoError(t, err)
	resp, err := protocol.DecodeResponse(out)
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "connection limit")

	// The first connection is unaffected.
	send(t, first, socketclient.NewRequest(protocol.CommandPrint, nil))
}

func TestServerRejectedConnectionIsRegistered(t *testing.T) {
	ts := startServer(t, nil, func(o *Options) { o.MaxConnections = 1 })
	first := ts.dial(t)
	send(t, first, socketclient.NewRequest(protocol.CommandPrint, nil))

	conn, err := net.Dial("unix", ts.path)
	require.NoError(t, err)
	defer conn.Close()

	fr := protocol.NewFrameReader(conn, 0)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = fr.ReadFrame()
	require.NoError(t, err)

	// Listener, the accepted connection and the rejected one.
	assert.Len(t, ts.server.Sockets().IDs(), 3)

	ts.shutdown.Shutdown("test")
	assert.Zero(t, ts.server.Sockets().Len())

	// Shutdown closed the rejected connection without waiting for its deadline.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = fr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerConnectionStates(t *testing.T) {
	var mu sync.Mutex
	var states []ConnState
	closed := make(chan struct{})
	ts := startServer(t, nil, func(o *Options) {
		o.OnConnState = func(_ string, s ConnState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
			if s == StateClosed {
				close(closed)
			}
		}
	})

	client := ts.dial(t)
	send(t, client, socketclient.NewRequest(protocol.CommandTree, nil))
	require.NoError(t, client.Close())

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("connection worker did not close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnState{StateAwaitingFrame, StateDispatching, StateResponding, StateAwaitingFrame, StateClosed}, states)
	assert.Equal(t, "responding", StateResponding.String())

	assert.Eventually(t, func() bool { return ts.server.ActiveConnections() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{listenerID}, ts.server.Sockets().IDs())
}

func TestServerRateLimitKeepsOrder(t *testing.T) {
	ts := startServer(t, nil, func(o *Options) {
		o.RateLimit = 20
		o.RateBurst = 1
	})
	client := ts.dial(t)

	start := time.Now()
	for i := 0; i < 4; i++ {
		resp := send(t, client, socketclient.NewRequest(protocol.CommandPrint, []byte(fmt.Sprint(i))))
		assert.Equal(t, fmt.Sprintf("print:%d", i), string(resp.Text))
	}
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestServerAuditsRequests(t *testing.T) {
	auditor := &memAuditor{}
	ts := startServer(t, nil, func(o *Options) { o.Auditor = auditor })
	client := ts.dial(t)

	req := socketclient.NewRequest(protocol.CommandStub, []byte("abc"))
	send(t, client, req)
	sendRaw(t, client, `{"cmd":"bogus"}`)

	ts.shutdown.Shutdown("done")

	entries := auditor.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "stub", entries[0].Command)
	assert.Equal(t, req.RequestID, entries[0].RequestID)
	assert.True(t, entries[0].OK)
	assert.Positive(t, entries[0].BytesIn)
	assert.Positive(t, entries[0].BytesOut)
	assert.Equal(t, "bogus", entries[1].Command)
	assert.False(t, entries[1].OK)
	assert.Equal(t, 1, auditor.closed)
}

func TestListenSocketInUse(t *testing.T) {
	ts := startServer(t, nil, nil)

	second, err := NewServer(Options{SocketPath: ts.path}, testHandlers())
	require.NoError(t, err)
	err = second.Listen(context.Background())
	assert.ErrorIs(t, err, ErrSocketInUse)

	// The running server is untouched.
	client := ts.dial(t)
	send(t, client, socketclient.NewRequest(protocol.CommandPrint, nil))
}

func TestListenNotSocket(t *testing.T) {
	path := shortSocketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0600))

	server, err := NewServer(Options{SocketPath: path}, testHandlers())
	require.NoError(t, err)
	assert.ErrorIs(t, server.Listen(context.Background()), ErrNotSocket)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := shortSocketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	server, err := NewServer(Options{SocketPath: path}, testHandlers())
	require.NoError(t, err)
	require.NoError(t, server.Listen(context.Background()))
	shutdown := NewShutdown(server, nil)
	defer shutdown.Shutdown("test")
	go server.Serve()

	client, err := socketclient.NewClient(path)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	send(t, client, socketclient.NewRequest(protocol.CommandPrint, nil))
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Options{}, testHandlers())
	assert.Error(t, err)
	_, err = NewServer(Options{SocketPath: "x.sock"}, nil)
	assert.Error(t, err)

	server, err := NewServer(Options{SocketPath: "x.sock"}, testHandlers())
	require.NoError(t, err)
	assert.Error(t, server.Serve(), "serve before listen")
}
