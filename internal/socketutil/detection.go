// Package socketutil inspects socket paths before a server binds them.
package socketutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codefionn/langsock/internal/consts"
)

// SocketDetectionTimeout is how long to wait for socket detection
const SocketDetectionTimeout = consts.Timeout1Second

// PathState describes what occupies a socket path.
type PathState int

const (
	// PathAbsent means nothing exists at the path
	PathAbsent PathState = iota
	// PathStale means a socket file exists but nothing accepts connections
	PathStale
	// PathLive means a server accepts connections on the path
	PathLive
	// PathNotSocket means a regular file or directory occupies the path
	PathNotSocket
)

func (s PathState) String() string {
	switch s {
	case PathAbsent:
		return "absent"
	case PathStale:
		return "stale"
	case PathLive:
		return "live"
	case PathNotSocket:
		return "not a socket"
	default:
		return "unknown"
	}
}

// ExpandPath expands a leading ~ and makes the path absolute.
func ExpandPath(socketPath string) (string, error) {
	if socketPath == "" {
		return "", fmt.Errorf("socket path is empty")
	}
	if socketPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		socketPath = filepath.Join(homeDir, socketPath[1:])
	}
	return filepath.Abs(socketPath)
}

// InspectPath reports what currently occupies socketPath. A live check dials
// the socket with the given timeout (SocketDetectionTimeout when zero).
func InspectPath(socketPath string, timeout time.Duration) (PathState, error) {
	if timeout <= 0 {
		timeout = SocketDetectionTimeout
	}
	return inspectPath(socketPath, timeout)
}

// DetectSocketServer reports whether a server is accepting connections at
// socketPath. On platforms without Unix sockets it always returns false.
func DetectSocketServer(socketPath string) bool {
	state, err := InspectPath(socketPath, 0)
	return err == nil && state == PathLive
}

// Describe returns a human-readable description of socketPath for logging.
func Describe(socketPath string) string {
	state, err := InspectPath(socketPath, 0)
	if err != nil {
		return fmt.Sprintf("Socket path: %s (error: %v)", socketPath, err)
	}
	return fmt.Sprintf("Socket path: %s (%s)", socketPath, state)
}
