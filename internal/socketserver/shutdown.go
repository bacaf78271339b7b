package socketserver

import (
	"sync"

	"github.com/codefionn/langsock/internal/consts"
	"github.com/codefionn/langsock/internal/logger"
)

// Shutdown coordinates the single teardown of a server. It may be triggered
// concurrently by the signal handler, the liveness monitor, the socket
// watcher and the accept loop; only the first trigger does anything.
type Shutdown struct {
	server *Server
	exit   func(code int)

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

// NewShutdown creates a coordinator for server. exit is called with the exit
// status after teardown; nil means do nothing.
func NewShutdown(server *Server, exit func(code int)) *Shutdown {
	if exit == nil {
		exit = func(int) {}
	}
	return &Shutdown{
		server: server,
		exit:   exit,
		done:   make(chan struct{}),
	}
}

// Shutdown tears the server down and exits with consts.ExitOK. Calls after
// the first wait for the teardown to finish and return without effect.
func (sd *Shutdown) Shutdown(reason string) {
	sd.once.Do(func() {
		sd.mu.Lock()
		sd.reason = reason
		sd.mu.Unlock()

		logger.Info("Shutting down: %s", reason)
		sd.server.Close()
		logger.Info("Unix socket server stopped")

		close(sd.done)
		sd.exit(consts.ExitOK)
	})
}

// Done is closed once teardown is complete.
func (sd *Shutdown) Done() <-chan struct{} {
	return sd.done
}

// Reason returns the reason given by the first Shutdown call.
func (sd *Shutdown) Reason() string {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.reason
}
