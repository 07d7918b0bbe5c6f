package consts

import "time"

// Network defaults
const (
	// DefaultHost is the loopback address both listeners bind to
	DefaultHost = "127.0.0.1"
	// DefaultIssuePort is the port that hands out tokens
	DefaultIssuePort = 8000
	// DefaultValidatePort is the port that checks submissions
	DefaultValidatePort = 8001
)

// Buffer sizes for various operations
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
)

// Protocol limits
const (
	// MaxIDSize caps a correlation identifier at one 1 KiB receive buffer
	MaxIDSize = BufferSize1KB
	// MaxFrameSize caps any single frame on either port
	MaxFrameSize = BufferSize64KB
	// DefaultMaxConnections bounds in-flight handlers in concurrent dispatch mode
	DefaultMaxConnections = 50
	// AcceptQueueSize is the buffer between the accept goroutines and the dispatch loop
	AcceptQueueSize = 50
	// AdminMaxConnections caps concurrent connections to the admin endpoint
	AdminMaxConnections = 16
)

// Token parameters
const (
	// KeySize is the size of the server key in bytes
	KeySize = 32
	// MaxClockSkew is how far in the future a token timestamp may lie
	MaxClockSkew = 60 * time.Second
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
)

// Message log
const (
	// DefaultMessageLogPath is where validated messages are appended
	DefaultMessageLogPath = "server_comm.log"
	// MessageLogMailboxSize is the number of pending appends the writer buffers
	MessageLogMailboxSize = 128
	// DefaultClientMessage is the payload the stock client submits
	DefaultClientMessage = "Client Verification Request"
)
