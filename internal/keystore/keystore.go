// Package keystore owns the single symmetric key of a server process and turns
// correlation identifiers into authenticated tokens and back.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/securemem"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrDecrypt is returned for any token that does not authenticate under the key:
	// bad encoding, unknown version, truncation, tampering or a foreign key.
	ErrDecrypt = errors.New("token decryption failed")
	// ErrTokenExpired is returned by DecryptWithTTL for tokens older than the TTL.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenFuture is returned by DecryptWithTTL for tokens issued too far in the future.
	ErrTokenFuture = errors.New("token issued in the future")
)

// KeyStore holds one key for the lifetime of the process. It is safe for
// concurrent use; the key is never modified after construction.
type KeyStore struct {
	key  *securemem.Key
	now  func() time.Time
	rand io.Reader
}

// Option customizes a KeyStore.
type Option func(*KeyStore)

// WithClock overrides the time source stamped into tokens.
func WithClock(now func() time.Time) Option {
	return func(ks *KeyStore) {
		ks.now = now
	}
}

// Generate creates a KeyStore around a fresh random key.
func Generate(opts ...Option) (*KeyStore, error) {
	key, err := securemem.NewRandomKey(consts.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return build(key, opts), nil
}

// New creates a KeyStore from existing key material. The slice is wiped.
func New(key []byte, opts ...Option) (*KeyStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k, err := securemem.NewKeyFromBytes(key)
	if err != nil {
		return nil, err
	}
	return build(k, opts), nil
}

func build(key *securemem.Key, opts []Option) *KeyStore {
	ks := &KeyStore{
		key:  key,
		now:  time.Now,
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

// Encrypt seals plaintext into a token.
func (ks *KeyStore) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(ks.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var token []byte
	err := ks.key.WithBytes(func(key []byte) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("init aead: %w", err)
		}
		token = sealToken(aead, ks.now(), nonce, plaintext)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Decrypt opens a token without checking its age.
func (ks *KeyStore) Decrypt(token []byte) ([]byte, error) {
	plaintext, _, err := ks.open(token)
	return plaintext, err
}

// DecryptWithTTL opens a token and additionally rejects it when it was issued
// more than ttl before now. A ttl of zero disables the age check.
func (ks *KeyStore) DecryptWithTTL(token []byte, ttl time.Duration, now time.Time) ([]byte, error) {
	plaintext, issued, err := ks.open(token)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return plaintext, nil
	}
	if issued.After(now.Add(consts.MaxClockSkew)) {
		return nil, ErrTokenFuture
	}
	if now.Sub(issued) > ttl {
		return nil, ErrTokenExpired
	}
	return plaintext, nil
}

func (ks *KeyStore) open(token []byte) ([]byte, time.Time, error) {
	parsed, err := parseToken(token)
	if err != nil {
		return nil, time.Time{}, err
	}

	var plaintext []byte
	err = ks.key.WithBytes(func(key []byte) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("init aead: %w", err)
		}
		plaintext, err = aead.Open(nil, parsed.nonce, parsed.ciphertext, parsed.header)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	return plaintext, parsed.issuedAt, nil
}

// Destroy wipes the key. Tokens can no longer be issued or checked.
func (ks *KeyStore) Destroy() {
	ks.key.Destroy()
}
