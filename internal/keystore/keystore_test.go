package keystore

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/codefionn/tokengate/internal/securemem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *KeyStore {
	t.Helper()
	ks, err := Generate(opts...)
	require.NoError(t, err)
	t.Cleanup(ks.Destroy)
	return ks
}

func TestRoundTrip(t *testing.T) {
	ks := newTestStore(t)

	ids := [][]byte{
		[]byte("abc-123"),
		[]byte("0190f7a4-8a3e-7c3b-9d1e-2f4a5b6c7d8e"),
		{0x00},
		bytes.Repeat([]byte{0xff}, 1024),
	}
	for i := 0; i < 32; i++ {
		id := make([]byte, 1+i*7)
		_, err := rand.Read(id)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		token, err := ks.Encrypt(id)
		require.NoError(t, err)
		assert.NotEqual(t, id, token, "token must not equal the identifier")

		plain, err := ks.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, id, plain)
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	ks := newTestStore(t)

	a, err := ks.Encrypt([]byte("abc-123"))
	require.NoError(t, err)
	b, err := ks.Encrypt([]byte("abc-123"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestForeignKeyFails(t *testing.T) {
	issuer := newTestStore(t)
	other := newTestStore(t)

	token, err := issuer.Encrypt([]byte("abc-123"))
	require.NoError(t, err)

	plain, err := other.Decrypt(token)
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.Nil(t, plain)
}

func TestGarbageFails(t *testing.T) {
	ks := newTestStore(t)

	inputs := [][]byte{
		nil,
		[]byte("garbage"),
		[]byte("not base64 at all!!"),
		[]byte("gAAAAABk"),
	}
	for i := 0; i < 64; i++ {
		raw := make([]byte, minTokenLength+i)
		_, err := rand.Read(raw)
		require.NoError(t, err)
		inputs = append(inputs, raw)

		encoded := make([]byte, tokenEncoding.EncodedLen(len(raw)))
		tokenEncoding.Encode(encoded, raw)
		inputs = append(inputs, encoded)
	}

	for _, in := range inputs {
		_, err := ks.Decrypt(in)
		assert.ErrorIs(t, err, ErrDecrypt, "input %q", in)
	}
}

func TestTamperedTokenFails(t *testing.T) {
	ks := newTestStore(t)

	token, err := ks.Encrypt([]byte("abc-123"))
	require.NoError(t, err)

	raw, err := tokenEncoding.DecodeString(string(token))
	require.NoError(t, err)

	for _, pos := range []int{0, 1, headerSize, headerSize + 24, len(raw) - 1} {
		mutated := append([]byte(nil), raw...)
		mutated[pos] ^= 0x01
		_, err := ks.Decrypt([]byte(tokenEncoding.EncodeToString(mutated)))
		assert.ErrorIs(t, err, ErrDecrypt, "flip at %d", pos)
	}
}

func TestDecryptWithTTL(t *testing.T) {
	issued := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ks := newTestStore(t, WithClock(func() time.Time { return issued }))

	token, err := ks.Encrypt([]byte("abc-123"))
	require.NoError(t, err)

	plain, err := ks.DecryptWithTTL(token, time.Minute, issued.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc-123"), plain)

	_, err = ks.DecryptWithTTL(token, time.Minute, issued.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = ks.DecryptWithTTL(token, time.Minute, issued.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrTokenFuture)

	plain, err = ks.DecryptWithTTL(token, 0, issued.Add(1000*time.Hour))
	require.NoError(t, err, "zero ttl disables the age check")
	assert.Equal(t, []byte("abc-123"), plain)
}

func TestNewRequiresFullKey(t *testing.T) {
	_, err := New(make([]byte, 16))
	assert.Error(t, err)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	ks, err := New(key)
	require.NoError(t, err)
	defer ks.Destroy()

	token, err := ks.Encrypt([]byte("id"))
	require.NoError(t, err)
	plain, err := ks.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, []byte("id"), plain)
}

func TestDestroyedStoreFails(t *testing.T) {
	ks, err := Generate()
	require.NoError(t, err)
	token, err := ks.Encrypt([]byte("abc-123"))
	require.NoError(t, err)

	ks.Destroy()

	_, err = ks.Encrypt([]byte("abc-123"))
	assert.ErrorIs(t, err, securemem.ErrDestroyed)
	_, err = ks.Decrypt(token)
	assert.ErrorIs(t, err, securemem.ErrDestroyed)
}
