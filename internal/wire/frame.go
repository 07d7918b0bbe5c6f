// Package wire defines the byte formats spoken on the issuing and validating ports.
//
// Every message on either port is a single frame: a protobuf varint length
// followed by that many payload bytes. Phase one carries the raw correlation
// identifier in one frame and answers with the token in one frame. Phase two
// carries a Submission record in one frame and gets no answer.
package wire

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformed is wrapped by every decoding failure in this package.
	ErrMalformed = errors.New("malformed payload")

	ErrTruncated      = errors.New("truncated")
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFieldCount     = errors.New("wrong number of fields")
	ErrEmptyField     = errors.New("empty field")
	ErrUnknownField   = errors.New("unknown field")
	ErrDuplicateField = errors.New("duplicate field")
	ErrFieldOrder     = errors.New("fields out of order")
)

func malformed(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", ErrMalformed, kind, fmt.Sprintf(format, args...))
}

// maxVarintLen is the longest varint protowire will produce for a uint64.
const maxVarintLen = 10

// WriteFrame writes payload as one length-delimited frame.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, protowire.SizeVarint(uint64(len(payload)))+len(payload))
	buf = protowire.AppendVarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame whose payload is at most maxSize bytes.
// It never reads past the end of the frame.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	size, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if size > uint64(maxSize) {
		return nil, malformed(ErrFrameTooLarge, "%d > %d bytes", size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, malformed(ErrTruncated, "payload: %v", err)
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return payload, nil
}

func readLength(r io.Reader) (uint64, error) {
	var prefix [maxVarintLen]byte
	for i := 0; i < maxVarintLen; i++ {
		if _, err := io.ReadFull(r, prefix[i:i+1]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, malformed(ErrTruncated, "length prefix after %d bytes", i)
			}
			return 0, fmt.Errorf("read frame length: %w", err)
		}
		if prefix[i] < 0x80 {
			v, n := protowire.ConsumeVarint(prefix[:i+1])
			if n < 0 {
				return 0, malformed(ErrTruncated, "length prefix: %v", protowire.ParseError(n))
			}
			return v, nil
		}
	}
	return 0, malformed(ErrFrameTooLarge, "length prefix overflows")
}
