// Package securemem provides memory-protected storage for sensitive data
// using memguard to prevent data from being read via debugger, memory dump, or swap.
package securemem

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a Key is used after Destroy.
var ErrDestroyed = errors.New("secure key destroyed")

// Key holds secret bytes in a guarded, mlocked, read-only buffer.
type Key struct {
	mu  sync.RWMutex
	buf *memguard.LockedBuffer
}

// NewRandomKey fills a fresh locked buffer of size bytes from the system CSPRNG.
func NewRandomKey(size int) (*Key, error) {
	if size <= 0 {
		return nil, errors.New("key size must be positive")
	}
	buf := memguard.NewBufferRandom(size)
	buf.Freeze()
	return &Key{buf: buf}, nil
}

// NewKeyFromBytes moves data into a locked buffer.
// NOTE: memguard wipes the input slice.
func NewKeyFromBytes(data []byte) (*Key, error) {
	if len(data) == 0 {
		return nil, errors.New("key material is empty")
	}
	buf := memguard.NewBufferFromBytes(data)
	buf.Freeze()
	return &Key{buf: buf}, nil
}

// WithBytes runs fn with the key material. fn must not retain the slice.
func (k *Key) WithBytes(fn func([]byte) error) error {
	if k == nil {
		return ErrDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.buf == nil || !k.buf.IsAlive() {
		return ErrDestroyed
	}
	return fn(k.buf.Bytes())
}

// Size returns the key length, 0 once destroyed.
func (k *Key) Size() int {
	if k == nil {
		return 0
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.buf == nil || !k.buf.IsAlive() {
		return 0
	}
	return k.buf.Size()
}

// Destroy wipes the key. It waits for in-progress WithBytes calls.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.buf != nil {
		k.buf.Destroy()
		k.buf = nil
	}
}

var cleanupOnce sync.Once

// Cleanup purges every memguard buffer in the process. Call once before exit.
func Cleanup() {
	cleanupOnce.Do(memguard.Purge)
}

// SecureWipe wipes a byte slice from memory.
func SecureWipe(data []byte) {
	memguard.WipeBytes(data)
}
