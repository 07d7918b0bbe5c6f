package keystore

import (
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Token layout before encoding:
//
//	version (1) | issued at, unix seconds (8, big endian) | nonce (24) | ciphertext+tag
//
// version and timestamp form the additional data, so both are authenticated.
const (
	tokenVersion   = 0x80
	headerSize     = 1 + 8
	minTokenLength = headerSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
)

var tokenEncoding = base64.RawURLEncoding

type rawToken struct {
	header     []byte
	issuedAt   time.Time
	nonce      []byte
	ciphertext []byte
}

func sealToken(aead cipher.AEAD, issuedAt time.Time, nonce, plaintext []byte) []byte {
	raw := make([]byte, headerSize, minTokenLength+len(plaintext))
	raw[0] = tokenVersion
	binary.BigEndian.PutUint64(raw[1:headerSize], uint64(issuedAt.Unix()))
	header := append([]byte(nil), raw...)
	raw = append(raw, nonce...)
	raw = aead.Seal(raw, nonce, plaintext, header)

	out := make([]byte, tokenEncoding.EncodedLen(len(raw)))
	tokenEncoding.Encode(out, raw)
	return out
}

func parseToken(token []byte) (*rawToken, error) {
	raw := make([]byte, tokenEncoding.DecodedLen(len(token)))
	n, err := tokenEncoding.Decode(raw, token)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrDecrypt, err)
	}
	raw = raw[:n]

	if len(raw) < minTokenLength {
		return nil, fmt.Errorf("%w: token too short", ErrDecrypt)
	}
	if raw[0] != tokenVersion {
		return nil, fmt.Errorf("%w: unsupported version 0x%02x", ErrDecrypt, raw[0])
	}

	nonceEnd := headerSize + chacha20poly1305.NonceSizeX
	return &rawToken{
		header:     raw[:headerSize],
		issuedAt:   time.Unix(int64(binary.BigEndian.Uint64(raw[1:headerSize])), 0),
		nonce:      raw[headerSize:nonceEnd],
		ciphertext: raw[nonceEnd:],
	}, nil
}
