package consts

import "time"

// Buffer sizes for frame handling
const (
	// BufferSize4KB is the initial read buffer of a connection
	BufferSize4KB = 4 * 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte
	BufferSize1MB = 1024 * 1024
	// BufferSize16MB is 16 megabytes
	BufferSize16MB = 16 * 1024 * 1024
)

// Frame limits
const (
	// DefaultMaxFrameSize bounds a single request frame. Source files sent for
	// analysis are base64-encoded, so this leaves room for roughly 12MB of source.
	DefaultMaxFrameSize = BufferSize16MB
)

// Server defaults
const (
	// DefaultMaxConnections is the default cap on concurrently open client connections
	DefaultMaxConnections = 64
	// DefaultCacheEntries is the default capacity of the response cache
	DefaultCacheEntries = 100
	// DefaultSocketPermissions is applied to the bound socket file
	DefaultSocketPermissions = "0600"
)

// Liveness monitoring
const (
	// DefaultMonitorInterval is how often the companion process is probed
	DefaultMonitorInterval = 3 * time.Second
	// MinMonitorInterval keeps misconfiguration from turning the probe into a busy loop
	MinMonitorInterval = 50 * time.Millisecond
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
)

// Process exit codes
const (
	// ExitOK is returned after a graceful shutdown
	ExitOK = 0
	// ExitStartupFailed covers startup failures without a more specific code
	ExitStartupFailed = 1
	// ExitUsage is returned for missing or malformed arguments
	ExitUsage = 2
	// ExitSocketInUse is returned when a live server already owns the socket path
	ExitSocketInUse = 3
	// ExitCompanionGone is returned when the companion process is not running at startup
	ExitCompanionGone = 4
)
