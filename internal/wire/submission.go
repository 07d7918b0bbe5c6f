package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Submission record.
const (
	fieldID      protowire.Number = 1
	fieldToken   protowire.Number = 2
	fieldMessage protowire.Number = 3
)

// Submission is the phase-two request: the identifier, the token issued for it
// and the message to record.
type Submission struct {
	ID      []byte
	Token   []byte
	Message []byte
}

// EncodeSubmission serializes s as three length-delimited fields in order.
func EncodeSubmission(s Submission) ([]byte, error) {
	fields := [][]byte{s.ID, s.Token, s.Message}
	size := 0
	for i, v := range fields {
		if len(v) == 0 {
			return nil, malformed(ErrEmptyField, "field %d", i+1)
		}
		size += protowire.SizeTag(protowire.Number(i+1)) + protowire.SizeBytes(len(v))
	}

	out := make([]byte, 0, size)
	for i, v := range fields {
		out = protowire.AppendTag(out, protowire.Number(i+1), protowire.BytesType)
		out = protowire.AppendBytes(out, v)
	}
	return out, nil
}

// DecodeSubmission parses a record produced by EncodeSubmission. It accepts
// exactly fields 1, 2 and 3, in that order, each present once and non-empty.
func DecodeSubmission(b []byte) (Submission, error) {
	var values [3][]byte
	last := protowire.Number(0)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Submission{}, malformed(ErrTruncated, "tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		if num < fieldID || num > fieldMessage || typ != protowire.BytesType {
			return Submission{}, malformed(ErrUnknownField, "field %d type %d", num, typ)
		}
		switch {
		case num <= last:
			return Submission{}, malformed(ErrDuplicateField, "field %d", num)
		case num != last+1:
			return Submission{}, malformed(ErrFieldOrder, "field %d after %d", num, last)
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Submission{}, malformed(ErrTruncated, "field %d: %v", num, protowire.ParseError(n))
		}
		if len(v) == 0 {
			return Submission{}, malformed(ErrEmptyField, "field %d", num)
		}
		values[num-1] = v
		last = num
		b = b[n:]
	}

	if last != fieldMessage {
		return Submission{}, malformed(ErrFieldCount, "got %d of 3", last)
	}
	return Submission{ID: values[0], Token: values[1], Message: values[2]}, nil
}
