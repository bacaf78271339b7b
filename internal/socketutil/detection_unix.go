//go:build linux || darwin || freebsd || netbsd || openbsd

package socketutil

import (
	"context"
	"os"
	"time"

	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/socketclient"
)

func inspectPath(socketPath string, timeout time.Duration) (PathState, error) {
	stat, err := os.Lstat(socketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return PathAbsent, nil
		}
		return PathAbsent, err
	}

	if stat.Mode()&os.ModeSocket == 0 {
		logger.Debug("File exists but is not a socket: %s", socketPath)
		return PathNotSocket, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg := socketclient.DefaultConfig()
	cfg.SocketPath = socketPath
	cfg.ConnectTimeout = timeout
	client, err := socketclient.NewClientWithConfig(cfg)
	if err != nil {
		return PathAbsent, err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		logger.Debug("Socket exists but connection failed: %v", err)
		return PathStale, nil
	}

	logger.Debug("Detected active socket server at: %s", socketPath)
	return PathLive, nil
}
