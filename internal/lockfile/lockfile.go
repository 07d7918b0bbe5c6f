// Package lockfile keeps two server processes from serving the same ports.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrLockAcquired = errors.New("lock already acquired")
	ErrLocked       = errors.New("server is already running")
)

// Owner is what a lockfile records about the process holding it.
type Owner struct {
	PID      int
	Started  time.Time
	Endpoint string
}

func (o Owner) String() string {
	return fmt.Sprintf("%d\n%s\n%s\n", o.PID, o.Started.Format(time.RFC3339), o.Endpoint)
}

func parseOwner(data []byte) (Owner, error) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Owner{}, fmt.Errorf("invalid PID in lockfile: %w", err)
	}
	owner := Owner{PID: pid}
	if len(lines) >= 2 {
		owner.Started, _ = time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
	}
	if len(lines) >= 3 {
		owner.Endpoint = strings.TrimSpace(lines[2])
	}
	return owner, nil
}

// Lockfile represents a file-based lock
type Lockfile struct {
	path     string
	endpoint string
	file     *os.File
	pid      int
	locked   bool
}

// New creates a lockfile at path. endpoint is recorded for the error a second
// instance reports, e.g. "127.0.0.1:8000,8001".
func New(path, endpoint string) *Lockfile {
	return &Lockfile{
		path:     path,
		endpoint: endpoint,
	}
}

// TryAcquire takes the lock, replacing a lockfile whose owner is gone.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return ErrLockAcquired
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		stale, reason := l.checkStale()
		if !stale {
			return fmt.Errorf("%w: %s", ErrLocked, reason)
		}
		if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, removeErr)
		}
		file, err = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	}
	if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	owner := Owner{PID: l.pid, Started: time.Now(), Endpoint: l.endpoint}
	if _, err := l.file.WriteString(owner.String()); err != nil {
		l.Release()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}
	return nil
}

// checkStale reports whether the existing lockfile may be replaced, and why
// not when it may not.
func (l *Lockfile) checkStale() (bool, string) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true, "cannot read lockfile"
	}
	owner, err := parseOwner(data)
	if err != nil {
		return true, err.Error()
	}

	// a leftover file from an earlier process that happened to get our PID
	if owner.PID == os.Getpid() {
		return true, "lockfile carries our own PID"
	}
	if running, reason := isProcessRunning(owner.PID); !running {
		return true, reason
	}

	if owner.Endpoint != "" {
		return false, fmt.Sprintf("process with PID %d is serving %s", owner.PID, owner.Endpoint)
	}
	return false, fmt.Sprintf("process with PID %d is running", owner.PID)
}

// Release releases the lock
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove lockfile: %w", err))
	}

	l.locked = false
	return errors.Join(errs...)
}

// PID returns the PID that acquired the lock
func (l *Lockfile) PID() int {
	return l.pid
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
