//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package socketutil

import (
	"os"
	"time"

	"github.com/codefionn/langsock/internal/logger"
)

// Unix sockets are not probed on this platform; an existing file is treated
// as stale.
func inspectPath(socketPath string, _ time.Duration) (PathState, error) {
	if _, err := os.Lstat(socketPath); err != nil {
		if os.IsNotExist(err) {
			return PathAbsent, nil
		}
		return PathAbsent, err
	}
	logger.Debug("Socket server detection skipped: Unix sockets not supported on this platform")
	return PathStale, nil
}
