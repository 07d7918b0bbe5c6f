package securemem

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewRandomKey(t *testing.T) {
	k, err := NewRandomKey(32)
	if err != nil {
		t.Fatalf("NewRandomKey: %v", err)
	}
	defer k.Destroy()

	if k.Size() != 32 {
		t.Errorf("expected size 32, got %d", k.Size())
	}

	err = k.WithBytes(func(b []byte) error {
		if bytes.Equal(b, make([]byte, 32)) {
			t.Error("random key is all zero")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithBytes: %v", err)
	}
}

func TestNewRandomKeyRejectsNonPositiveSize(t *testing.T) {
	if _, err := NewRandomKey(0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestNewKeyFromBytes(t *testing.T) {
	original := []byte{0x01, 0x02, 0x03, 0x04}
	expected := append([]byte(nil), original...) // memguard wipes the input
	k, err := NewKeyFromBytes(original)
	if err != nil {
		t.Fatalf("NewKeyFromBytes: %v", err)
	}
	defer k.Destroy()

	var got []byte
	_ = k.WithBytes(func(b []byte) error {
		got = append([]byte(nil), b...)
		return nil
	})
	if !bytes.Equal(got, expected) {
		t.Errorf("expected %x, got %x", expected, got)
	}
}

func TestKeyDestroy(t *testing.T) {
	k, _ := NewRandomKey(16)
	k.Destroy()
	k.Destroy()

	if k.Size() != 0 {
		t.Error("destroyed key should report size 0")
	}
	err := k.WithBytes(func([]byte) error { return nil })
	if !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
}

func TestWithBytesPropagatesError(t *testing.T) {
	k, _ := NewRandomKey(16)
	defer k.Destroy()

	sentinel := errors.New("boom")
	if err := k.WithBytes(func([]byte) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel, got %v", err)
	}
}

func TestSecureWipe(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	SecureWipe(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d should be zero after wipe, got %x", i, b)
		}
	}
}
