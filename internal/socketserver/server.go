package socketserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/langsock/internal/audit"
	"github.com/codefionn/langsock/internal/config"
	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/lockfile"
	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/protocol"
	"github.com/codefionn/langsock/internal/socketutil"
)

var (
	// ErrSocketInUse means another running server owns the socket path.
	ErrSocketInUse = errors.New("socket is already in use by a running server")
	// ErrNotSocket means the socket path is occupied by something else.
	ErrNotSocket = errors.New("path exists and is not a socket")
)

const listenerID = "listener"

// Dispatcher turns a request into a response. *dispatch.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response
}

var _ Dispatcher = (*dispatch.Registry)(nil)

// Auditor receives one entry per answered frame.
type Auditor interface {
	Record(e audit.Entry)
	Close() error
}

// Options configures a Server.
type Options struct {
	SocketPath     string
	Permissions    os.FileMode // applied after bind when non-zero
	MaxConnections int
	MaxFrameSize   int
	WriteTimeout   time.Duration
	RateLimit      float64 // requests per second per connection, 0 disables
	RateBurst      int
	Auditor        Auditor
	// Ready receives the "Listening on <path>" line once the socket is bound.
	Ready io.Writer
	// OnConnState observes connection worker state changes.
	OnConnState func(id string, state ConnState)
}

// OptionsFromConfig builds Options for socketPath from cfg.
func OptionsFromConfig(socketPath string, cfg *config.Config) (Options, error) {
	mode, err := cfg.SocketMode()
	if err != nil {
		return Options{}, err
	}
	return Options{
		SocketPath:     socketPath,
		Permissions:    mode,
		MaxConnections: cfg.MaxConnections,
		MaxFrameSize:   cfg.MaxFrameSize,
		WriteTimeout:   cfg.WriteTimeout,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	}, nil
}

// Server represents the Unix socket server
type Server struct {
	opts     Options
	handlers Dispatcher
	sockets  *Registry
	log      *logger.Logger

	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	lock       *lockfile.Lockfile
	ctx        context.Context
	cancel     context.CancelFunc

	connSeq   atomic.Uint64
	active    atomic.Int64
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewServer creates a server dispatching to handlers.
func NewServer(opts Options, handlers Dispatcher) (*Server, error) {
	if opts.SocketPath == "" {
		return nil, fmt.Errorf("socket path is not configured")
	}
	if handlers == nil {
		return nil, fmt.Errorf("no dispatcher configured")
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = consts.DefaultMaxConnections
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = consts.DefaultMaxFrameSize
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}

	return &Server{
		opts:     opts,
		handlers: handlers,
		sockets:  NewRegistry(),
		log:      logger.Global().WithPrefix("socket"),
	}, nil
}

// Listen binds the socket path. A live server on the path yields
// ErrSocketInUse, a non-socket file ErrNotSocket; a stale socket file is
// replaced.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server is already listening on %s", s.socketPath)
	}

	absPath, err := s.prepareSocketPath(s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to prepare socket path: %w", err)
	}

	if err := checkSocketPath(absPath); err != nil {
		return err
	}

	lock := lockfile.ForSocket(absPath)
	if err := lock.TryAcquire(); err != nil {
		if errors.Is(err, lockfile.ErrLocked) {
			return fmt.Errorf("%w: %s (%v)", ErrSocketInUse, absPath, err)
		}
		return fmt.Errorf("failed to lock socket path: %w", err)
	}

	// The lock holder may have bound the path between the check and the lock.
	if err := checkSocketPath(absPath); err != nil {
		lock.Release()
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		lock.Release()
		return fmt.Errorf("failed to remove stale socket file: %w", err)
	}

	listener, err := net.Listen("unix", absPath)
	if err != nil {
		lock.Release()
		return fmt.Errorf("failed to listen on Unix socket %s: %w", absPath, err)
	}
	if ul, ok := listener.(*net.UnixListener); ok {
		// Removal is an explicit shutdown step.
		ul.SetUnlinkOnClose(false)
	}

	if s.opts.Permissions != 0 {
		if err := os.Chmod(absPath, s.opts.Permissions); err != nil {
			s.log.Warn("Failed to set socket permissions: %v", err)
		} else {
			s.log.Debug("Socket permissions set to %04o", s.opts.Permissions)
		}
	}

	if err := s.sockets.Add(listenerID, OnceCloser(listener)); err != nil {
		listener.Close()
		os.Remove(absPath)
		lock.Release()
		return fmt.Errorf("server is shutting down: %w", err)
	}

	s.listener = listener
	s.socketPath = absPath
	s.lock = lock
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.log.Info("Unix socket server listening on %s (max connections: %d)", absPath, s.opts.MaxConnections)
	if s.opts.Ready != nil {
		fmt.Fprintf(s.opts.Ready, "Listening on %s\n", absPath)
	}
	return nil
}

func checkSocketPath(absPath string) error {
	state, err := socketutil.InspectPath(absPath, socketutil.SocketDetectionTimeout)
	if err != nil {
		return fmt.Errorf("failed to inspect socket path: %w", err)
	}
	switch state {
	case socketutil.PathLive:
		return fmt.Errorf("%w: %s", ErrSocketInUse, absPath)
	case socketutil.PathNotSocket:
		return fmt.Errorf("%w: %s", ErrNotSocket, absPath)
	case socketutil.PathStale:
		logger.Info("Replacing stale socket file %s", absPath)
	}
	return nil
}

// prepareSocketPath expands and validates the socket path
func (s *Server) prepareSocketPath(socketPath string) (string, error) {
	absPath, err := socketutil.ExpandPath(socketPath)
	if err != nil {
		return "", err
	}

	parentDir := filepath.Dir(absPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directory %s: %w", parentDir, err)
	}

	return absPath, nil
}

// Serve runs the accept loop until the listener is closed. It returns nil
// when the server shuts down.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener, ctx := s.listener, s.ctx
	s.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("server is not listening")
	}

	var backoff time.Duration
	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || isClosedError(err) {
				s.log.Debug("Accept loop stopped")
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > consts.Timeout1Second {
				backoff = consts.Timeout1Second
			}
			s.log.Error("Error accepting connection: %v; retrying in %v", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		id := s.generateConnectionID()
		if int(s.active.Load()) >= s.opts.MaxConnections {
			s.reject(nc, id)
			continue
		}

		c := newConn(id, nc, s)
		if err := s.sockets.Add(id, c); err != nil {
			nc.Close()
			return nil
		}
		s.active.Add(1)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(ctx)
		}()

		s.log.Debug("New connection accepted: %s (active: %d)", id, s.active.Load())
	}
}

// reject answers a connection over the limit with an error frame and closes
// it once the peer hangs up or the deadline passes. The connection is in the
// socket registry until then.
func (s *Server) reject(nc net.Conn, id string) {
	s.log.Warn("Connection limit reached, rejecting %s", id)

	rc := OnceCloser(nc)
	if err := s.sockets.Add(id, rc); err != nil {
		rc.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.sockets.Remove(id)
			rc.Close()
		}()

		msg := fmt.Sprintf("server is at its connection limit (%d)", s.opts.MaxConnections)
		out, err := protocol.EncodeResponse(protocol.NewErrorResponse("", msg))
		if err != nil {
			return
		}
		_ = nc.SetDeadline(time.Now().Add(consts.Timeout5Seconds))
		if _, err := nc.Write(out); err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, nc)
	}()
}

// generateConnectionID generates a unique connection ID
func (s *Server) generateConnectionID() string {
	return fmt.Sprintf("conn_%d", s.connSeq.Add(1))
}

func (s *Server) record(e audit.Entry) {
	if s.opts.Auditor != nil {
		s.opts.Auditor.Record(e)
	}
}

// SocketPath returns the bound absolute socket path.
func (s *Server) SocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketPath
}

// Sockets returns the socket registry.
func (s *Server) Sockets() *Registry {
	return s.sockets
}

// ActiveConnections returns the number of live connection workers.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Wait blocks until every connection worker has returned or timeout passes.
// It reports whether all workers finished.
func (s *Server) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close tears the server down once. It cancels the server context, closes
// every registered socket, removes the socket path, releases the lock and
// closes the audit sink. Later calls return immediately.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel, socketPath, lock := s.cancel, s.socketPath, s.lock
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		for _, err := range s.sockets.CloseAll() {
			s.log.Warn("Error closing socket: %v", err)
		}

		if !s.Wait(consts.Timeout5Seconds) {
			s.log.Warn("Connection workers still running after shutdown grace period")
		}

		if socketPath != "" {
			if info, err := os.Lstat(socketPath); err == nil && info.Mode()&os.ModeSocket != 0 {
				if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
					s.log.Warn("Failed to remove socket file %s: %v", socketPath, err)
				} else {
					s.log.Debug("Socket file removed: %s", socketPath)
				}
			}
		}

		if lock != nil {
			if err := lock.Release(); err != nil {
				s.log.Warn("Failed to release lock: %v", err)
			}
		}

		if s.opts.Auditor != nil {
			if err := s.opts.Auditor.Close(); err != nil {
				s.log.Warn("Failed to close audit log: %v", err)
			}
		}
	})
}

// isClosedError checks if an error indicates a closed socket
func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
