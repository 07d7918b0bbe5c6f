package messagelog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const fileTimeLayout = time.RFC3339Nano

// FileSink appends one line per entry to a text file:
//
//	2026-10-18T12:00:00.123456789Z INFO "hello"
//
// The message is Go-quoted so that a line never spans more than one line.
type FileSink struct {
	path string
	file *os.File
}

// OpenFile opens path for appending, creating it and its directory if needed.
func OpenFile(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("message log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create message log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open message log: %w", err)
	}
	return &FileSink{path: path, file: file}, nil
}

// Append writes e as a single line and syncs it to disk.
func (s *FileSink) Append(_ context.Context, e Entry) error {
	if s.file == nil {
		return ErrClosed
	}
	line := fmt.Sprintf("%s INFO %s\n", e.Timestamp.UTC().Format(fileTimeLayout), strconv.Quote(string(e.Message)))
	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync message log: %w", err)
	}
	return nil
}

// Entries reads the file back. Lines that do not parse are skipped.
func (s *FileSink) Entries(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e, ok := parseLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read message log: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (Entry, bool) {
	stamp, rest, ok := strings.Cut(line, " INFO ")
	if !ok {
		return Entry{}, false
	}
	ts, err := time.Parse(fileTimeLayout, stamp)
	if err != nil {
		return Entry{}, false
	}
	msg, err := strconv.Unquote(rest)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Timestamp: ts, Message: []byte(msg)}, true
}

// Close closes the file. Further appends fail with ErrClosed.
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
