package socketclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/protocol"
)

// ConnectionState represents the current state of the socket connection
type ConnectionState int

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected ConnectionState = iota
	// StateConnected indicates the client is connected
	StateConnected
	// StateClosed indicates the client has been closed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Send before Connect or after Close.
	ErrNotConnected = errors.New("client is not connected")
	// ErrRequestIDMismatch is returned when a response answers another request.
	ErrRequestIDMismatch = errors.New("response request id does not match")
)

// Config holds client configuration
type Config struct {
	// SocketPath is the path to the Unix socket
	SocketPath string
	// ConnectTimeout is the timeout for initial connection
	ConnectTimeout time.Duration
	// RequestTimeout bounds one request when the context has no deadline
	RequestTimeout time.Duration
	// MaxFrameSize limits the size of a response frame
	MaxFrameSize int
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: consts.Timeout10Seconds,
		RequestTimeout: consts.Timeout30Seconds,
		MaxFrameSize:   consts.DefaultMaxFrameSize,
	}
}

// Client sends requests over one connection. Requests are serialised: the
// server answers frames of a connection in order.
type Client struct {
	config *Config

	mu     sync.Mutex
	conn   net.Conn
	reader *protocol.FrameReader
	state  atomic.Int32
}

// NewClient creates a new socket client
func NewClient(socketPath string) (*Client, error) {
	config := DefaultConfig()
	config.SocketPath = socketPath
	return NewClientWithConfig(config)
}

// NewClientWithConfig creates a new socket client with custom configuration
func NewClientWithConfig(config *Config) (*Client, error) {
	if config == nil || config.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	c := &Client{config: config}
	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// expandPath expands ~ to the home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}

// Connect connects to the socket server
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.GetState() != StateDisconnected {
		return errors.New("already connected")
	}

	timeout := c.config.ConnectTimeout
	if timeout <= 0 {
		timeout = consts.Timeout10Seconds
	}
	dialer := net.Dialer{Timeout: timeout}

	socketPath := expandPath(c.config.SocketPath)
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to socket %s: %w", socketPath, err)
	}

	c.conn = conn
	c.reader = protocol.NewFrameReader(conn, c.config.MaxFrameSize)
	c.state.Store(int32(StateConnected))
	return nil
}

// Send encodes req, writes it and waits for its response. An empty request
// id is filled in with a fresh one.
func (c *Client) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	out := *req
	if out.RequestID == "" {
		out.RequestID = NewRequestID()
	}

	frame, err := protocol.EncodeRequest(&out)
	if err != nil {
		return nil, err
	}

	resp, err := c.SendRaw(ctx, frame)
	if err != nil {
		return nil, err
	}
	if resp.RequestID != "" && resp.RequestID != out.RequestID {
		return resp, fmt.Errorf("%w: sent %s, got %s", ErrRequestIDMismatch, out.RequestID, resp.RequestID)
	}
	return resp, nil
}

// SendRaw writes an already encoded frame and reads one response frame.
func (c *Client) SendRaw(ctx context.Context, frame []byte) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.GetState() != StateConnected || c.conn == nil {
		return nil, ErrNotConnected
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.config.RequestTimeout > 0 {
		deadline = time.Now().Add(c.config.RequestTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	// Unblock the pending read or write once ctx is cancelled.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if len(frame) == 0 || frame[len(frame)-1] != protocol.Delimiter {
		frame = append(frame, protocol.Delimiter)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, c.ioError(ctx, "write", err)
	}

	data, err := c.reader.ReadFrame()
	if err != nil {
		return nil, c.ioError(ctx, "read", err)
	}

	return protocol.DecodeResponse(data)
}

func (c *Client) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s cancelled: %w", op, ctxErr)
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%s cancelled: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("failed to %s frame: %w", op, err)
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.GetState() == StateClosed {
		return nil
	}
	c.state.Store(int32(StateClosed))

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.GetState() == StateConnected
}

// GetState returns the current connection state
func (c *Client) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}
