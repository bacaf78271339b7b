package socketserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/codefionn/langsock/internal/audit"
	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/protocol"
)

// ConnState is the state of a connection worker.
type ConnState int32

const (
	// StateAwaitingFrame blocks on the next request frame
	StateAwaitingFrame ConnState = iota
	// StateDispatching decodes the frame and runs its handler
	StateDispatching
	// StateResponding writes the response
	StateResponding
	// StateClosed is terminal
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateDispatching:
		return "dispatching"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// conn is one accepted connection, owned by its worker goroutine.
type conn struct {
	id      string
	netConn net.Conn
	server  *Server
	reader  *protocol.FrameReader
	limiter *rate.Limiter
	log     *logger.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

func newConn(id string, nc net.Conn, s *Server) *conn {
	c := &conn{
		id:      id,
		netConn: nc,
		server:  s,
		reader:  protocol.NewFrameReader(nc, s.opts.MaxFrameSize),
		log:     s.log.WithPrefix(id),
	}
	if s.opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst)
	}
	return c
}

// Close closes the socket exactly once, whoever calls it first: the worker
// itself or the registry during shutdown.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.netConn.Close()
	})
	return c.closeErr
}

func (c *conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *conn) setState(s ConnState) {
	c.state.Store(int32(s))
	if hook := c.server.opts.OnConnState; hook != nil {
		hook(c.id, s)
	}
}

// serve runs the read-dispatch-write loop until the peer goes away, an I/O
// error occurs or the server shuts down.
func (c *conn) serve(ctx context.Context) {
	defer c.finish()

	for {
		c.setState(StateAwaitingFrame)
		frame, err := c.reader.ReadFrame()
		start := time.Now()
		if err != nil {
			var tooLarge *protocol.FrameTooLargeError
			if errors.As(err, &tooLarge) {
				c.log.Warn("%v", err)
				c.setState(StateResponding)
				if !c.respond(dispatch.ErrorResponse(err, ""), "", start, 0) {
					return
				}
				continue
			}
			c.logReadError(err)
			return
		}

		c.setState(StateDispatching)
		resp, cmd := c.handle(ctx, frame)
		if resp == nil {
			// Server is shutting down.
			return
		}

		c.setState(StateResponding)
		if !c.respond(resp, cmd, start, len(frame)) {
			return
		}
	}
}

// handle decodes and dispatches one frame. Decode failures are answered on
// the same connection, which stays open.
func (c *conn) handle(ctx context.Context, frame []byte) (*protocol.Response, string) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		c.log.Debug("rejecting frame: %v", err)
		var unknown *protocol.UnknownCommandError
		if errors.As(err, &unknown) {
			return dispatch.ErrorResponse(err, ""), unknown.Command
		}
		return dispatch.ErrorResponse(err, ""), ""
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Debug("rate limiter stopped: %v", err)
			return nil, ""
		}
	}

	return c.server.handlers.Dispatch(ctx, req), string(req.Command)
}

func (c *conn) respond(resp *protocol.Response, cmd string, start time.Time, bytesIn int) bool {
	out, err := protocol.EncodeResponse(resp)
	if err != nil {
		c.log.Error("failed to encode response: %v", err)
		out, err = protocol.EncodeResponse(protocol.NewErrorResponse(resp.RequestID, "failed to encode response"))
		if err != nil {
			return false
		}
	}

	if timeout := c.server.opts.WriteTimeout; timeout > 0 {
		if err := c.netConn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			c.log.Debug("failed to set write deadline: %v", err)
			return false
		}
	}

	_, err = c.netConn.Write(out)
	c.server.record(audit.Entry{
		Time:      start,
		ConnID:    c.id,
		RequestID: resp.RequestID,
		Command:   cmd,
		OK:        err == nil && resp.OK(),
		Duration:  time.Since(start),
		BytesIn:   bytesIn,
		BytesOut:  len(out),
	})
	if err != nil {
		if !isClosedError(err) {
			c.log.Warn("failed to write response: %v", err)
		}
		return false
	}
	return true
}

func (c *conn) logReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		c.log.Debug("disconnected (EOF)")
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.log.Info("disconnected in the middle of a frame")
	case isClosedError(err):
		c.log.Debug("connection closed")
	default:
		c.log.Warn("read error: %v", err)
	}
}

func (c *conn) finish() {
	c.server.sockets.Remove(c.id)
	if err := c.Close(); err != nil && !isClosedError(err) {
		c.log.Debug("close: %v", err)
	}
	c.setState(StateClosed)
	c.server.active.Add(-1)
}
