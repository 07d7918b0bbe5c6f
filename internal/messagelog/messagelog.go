// Package messagelog records messages whose submission passed validation.
// Records are only ever appended.
package messagelog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrClosed is returned when appending to a closed sink or writer.
var ErrClosed = errors.New("message log closed")

// Entry is one validated message.
type Entry struct {
	Timestamp time.Time
	Message   []byte
	// Remote is the peer address of the validating connection, informational only.
	Remote string
}

// Sink persists entries. Implementations need not be safe for concurrent use;
// Writer serializes access.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Reader is implemented by sinks that can list what they stored.
type Reader interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// Open creates the sink for backend at path.
func Open(backend, path string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown message log backend %q", backend)
	}
}
