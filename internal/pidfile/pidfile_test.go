package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPidfile_WriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "tokengate.pid")
	p := New(path)

	if err := p.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pid, err := p.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), pid)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Temporary files left behind: %v", entries)
	}

	if err := p.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pidfile still exists after Remove")
	}
	if err := p.Remove(); err != nil {
		t.Errorf("Removing a missing pidfile should be a no-op, got: %v", err)
	}
}

func TestPidfile_RemoveKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokengate.pid")
	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := New(path).Remove()
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("foreign pidfile must be kept")
	}
}

func TestPidfile_ReadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokengate.pid")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New(path).Read(); err == nil {
		t.Error("Expected error for invalid PID")
	}
}
