// Package challenge implements the two connection handlers of the service:
// the Issuer hands out a token for a correlation identifier, the Validator
// records a message when a submitted token opens to the submitted identifier.
//
// Neither handler keeps state between connections. Whether a submission is
// accepted depends only on the key behind the Sealer/Opener pair.
package challenge

import (
	"context"
	"errors"
	"net"
	"time"
)

var (
	// ErrEmptyID is returned when a client sends an empty identifier.
	ErrEmptyID = errors.New("empty correlation identifier")
	// ErrMismatch is returned when a token opens to a different identifier.
	ErrMismatch = errors.New("token does not match identifier")
)

// Handler serves one accepted connection and closes it.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// Sealer turns an identifier into a token.
type Sealer interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Opener recovers the identifier from a token.
type Opener interface {
	DecryptWithTTL(token []byte, ttl time.Duration, now time.Time) ([]byte, error)
}

// MessageAppender persists a validated message.
type MessageAppender interface {
	Append(ctx context.Context, message []byte, remote string) error
}

func remoteString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
