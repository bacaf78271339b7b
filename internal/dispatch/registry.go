// Package dispatch maps protocol commands to handlers and turns every handler
// outcome, including panics, into a response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/protocol"
)

// Handler implements one command.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Gate decides whether a command may run at all.
type Gate interface {
	IsEnabled(cmd protocol.Command) bool
}

// Registry is the command table. Handlers are normally registered once at
// startup, but Register may be called at any time.
type Registry struct {
	mu       sync.RWMutex
	handlers map[protocol.Command]Handler
	gate     Gate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[protocol.Command]Handler)}
}

// Register installs h for cmd, replacing any previous handler.
func (r *Registry) Register(cmd protocol.Command, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[cmd]; exists {
		logger.Debug("dispatch: replacing handler for %s", cmd)
	}
	r.handlers[cmd] = h
}

// SetGate installs g; commands it rejects get an error response without
// reaching their handler. A nil gate allows everything.
func (r *Registry) SetGate(g Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = g
}

// Registered returns the commands that have a handler, sorted.
func (r *Registry) Registered() []protocol.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]protocol.Command, 0, len(r.handlers))
	for cmd := range r.handlers {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// Missing returns the known commands without a handler.
func (r *Registry) Missing() []protocol.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []protocol.Command
	for _, cmd := range protocol.Commands() {
		if _, ok := r.handlers[cmd]; !ok {
			missing = append(missing, cmd)
		}
	}
	return missing
}

func (r *Registry) lookup(cmd protocol.Command) (Handler, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[cmd]
	enabled := r.gate == nil || r.gate.IsEnabled(cmd)
	return h, ok, enabled
}

// Dispatch runs the handler registered for req.Command. It never returns nil
// and never panics: unknown commands, handler errors and handler panics all
// become error responses. The request id is echoed on every response.
func (r *Registry) Dispatch(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	if req == nil {
		return protocol.NewErrorResponse("", "empty request")
	}

	h, ok, enabled := r.lookup(req.Command)
	if !ok {
		return protocol.NewErrorResponse(req.RequestID, "unknown command "+string(req.Command))
	}
	if !enabled {
		return protocol.NewErrorResponse(req.RequestID, "command "+string(req.Command)+" is disabled")
	}

	defer func() {
		if v := recover(); v != nil {
			logger.Error("dispatch: handler %s panicked: %v\n%s", req.Command, v, debug.Stack())
			resp = protocol.NewErrorResponse(req.RequestID, fmt.Sprintf("handler %s panicked: %v", req.Command, v))
		}
	}()

	out, err := h.Handle(ctx, req)
	if err != nil {
		logger.Debug("dispatch: handler %s failed: %v", req.Command, err)
		return protocol.NewErrorResponse(req.RequestID, err.Error())
	}
	if out == nil {
		return protocol.NewErrorResponse(req.RequestID, fmt.Sprintf("handler %s returned no response", req.Command))
	}

	result := *out
	if result.Type == "" {
		result.Type = req.Command.ResponseType()
	}
	result.RequestID = req.RequestID
	return &result
}

// ErrorResponse converts a decode or framing error into an error response.
func ErrorResponse(err error, requestID string) *protocol.Response {
	if requestID == "" {
		requestID = protocol.RequestIDOf(err)
	}

	var unknown *protocol.UnknownCommandError
	if errors.As(err, &unknown) {
		return protocol.NewErrorResponse(requestID, "unknown command "+unknown.Command)
	}
	return protocol.NewErrorResponse(requestID, err.Error())
}
