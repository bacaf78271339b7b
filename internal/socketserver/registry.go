package socketserver

import (
	"errors"
	"io"
	"sort"
	"sync"
)

// ErrRegistryClosed is returned by Add once CloseAll has run.
var ErrRegistryClosed = errors.New("socket registry is closed")

// Registry tracks every open socket of the server: the listener and each
// accepted connection. One mutex guards the set; closing happens outside it.
type Registry struct {
	mu      sync.Mutex
	sockets map[string]io.Closer
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string]io.Closer)}
}

// Add registers c under id. After CloseAll it refuses with ErrRegistryClosed
// and the caller still owns c.
func (r *Registry) Add(id string, c io.Closer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.sockets[id] = c
	return nil
}

// Remove deregisters id. It reports whether id was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sockets[id]; !ok {
		return false
	}
	delete(r.sockets, id)
	return true
}

// Len returns the number of registered sockets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sockets)
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sockets))
	for id := range r.sockets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Closed reports whether CloseAll has run.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// CloseAll empties the registry and closes every socket that was in it. Only
// the first call closes anything; later calls return nil.
func (r *Registry) CloseAll() []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	snapshot := r.sockets
	r.sockets = make(map[string]io.Closer)
	r.mu.Unlock()

	var errs []error
	for id, c := range snapshot {
		if err := c.Close(); err != nil && !isClosedError(err) {
			errs = append(errs, &closeError{id: id, err: err})
		}
	}
	return errs
}

type closeError struct {
	id  string
	err error
}

func (e *closeError) Error() string {
	return "close " + e.id + ": " + e.err.Error()
}

func (e *closeError) Unwrap() error {
	return e.err
}

// onceCloser closes the wrapped closer at most once.
type onceCloser struct {
	once sync.Once
	c    io.Closer
	err  error
}

// OnceCloser wraps c so that only the first Close reaches it.
func OnceCloser(c io.Closer) io.Closer {
	return &onceCloser{c: c}
}

func (o *onceCloser) Close() error {
	o.once.Do(func() {
		o.err = o.c.Close()
	})
	return o.err
}
