package cryptostream

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptBytes(t *testing.T, c *Cipher, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Encrypt(&buf, bytes.NewReader(plain)))
	return buf.Bytes()
}

func decryptBytes(c *Cipher, cipherText []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Decrypt(&buf, bytes.NewReader(cipherText)); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func TestRoundTrip(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	sizes := []int{0, 1, 100, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3*ChunkSize + 17}
	for _, size := range sizes {
		plain := make([]byte, size)
		_, err := rand.Read(plain)
		require.NoError(t, err)

		enc := encryptBytes(t, c, plain)
		require.Greater(t, len(enc), headerSize, "size %d", size)

		dec, err := decryptBytes(c, enc)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, plain, dec, "size %d", size)
	}
}

func TestEmptyFileHasFrame(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	// A zero-byte plaintext still produces a header and one final chunk,
	// so truncation to nothing is detectable.
	enc := encryptBytes(t, c, nil)
	require.Greater(t, len(enc), headerSize)

	dec, err := decryptBytes(c, enc)
	require.NoError(t, err)
	assert.Empty(t, dec)
}

func TestSamePlaintextDiffersPerFile(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	plain := []byte("identical content")
	a := encryptBytes(t, c, plain)
	b := encryptBytes(t, c, plain)
	assert.NotEqual(t, a, b, "per-file salt must randomise ciphertext")
}

func TestWrongSecretFails(t *testing.T) {
	c1, err := New("secret-one")
	require.NoError(t, err)
	c2, err := New("secret-two")
	require.NoError(t, err)

	enc := encryptBytes(t, c1, []byte("hello"))
	_, err = decryptBytes(c2, enc)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTamperedChunkFails(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	enc := encryptBytes(t, c, bytes.Repeat([]byte("a"), 2*ChunkSize))

	// Flip one ciphertext byte past the header.
	enc[headerSize+4+nonceSize+10] ^= 0xff
	_, err = decryptBytes(c, enc)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTruncationFails(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	enc := encryptBytes(t, c, bytes.Repeat([]byte("b"), 3*ChunkSize))

	cases := map[string][]byte{
		"empty":          {},
		"partial header": enc[:headerSize-3],
		"header only":    enc[:headerSize],
		"mid chunk":      enc[:headerSize+100],
		"missing final":  enc[:len(enc)-200],
	}
	for name, truncated := range cases {
		_, err := decryptBytes(c, truncated)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestReorderedChunksFail(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("c"), 2*ChunkSize)
	enc := encryptBytes(t, c, plain)

	// Exactly two full chunks, the second flagged final. Swap them.
	chunkLen := 4 + nonceSize + ChunkSize + 16
	first := enc[headerSize : headerSize+chunkLen]
	second := enc[headerSize+chunkLen : headerSize+2*chunkLen]

	swapped := append([]byte{}, enc[:headerSize]...)
	swapped = append(swapped, second...)
	swapped = append(swapped, first...)
	swapped = append(swapped, enc[headerSize+2*chunkLen:]...)

	_, err = decryptBytes(c, swapped)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBadMagicFails(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	enc := encryptBytes(t, c, []byte("data"))
	enc[0] = 'X'
	_, err = decryptBytes(c, enc)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCopyEncrypted(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("d"), ChunkSize+123)
	enc := encryptBytes(t, c, plain)

	// Re-encrypt under a fresh salt without exposing plaintext framing.
	var out bytes.Buffer
	require.NoError(t, c.CopyEncrypted(&out, bytes.NewReader(enc)))
	assert.NotEqual(t, enc, out.Bytes())

	dec, err := decryptBytes(c, out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestDecryptStreams(t *testing.T) {
	c, err := New("test-secret")
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("e"), 2*ChunkSize)
	enc := encryptBytes(t, c, plain)

	// Decrypt through a one-byte-at-a-time reader to exercise short reads.
	var out bytes.Buffer
	err = c.Decrypt(&out, iotest{r: bytes.NewReader(enc)})
	require.NoError(t, err)
	assert.Equal(t, plain, out.Bytes())
}

type iotest struct{ r io.Reader }

func (s iotest) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return s.r.Read(p)
}
