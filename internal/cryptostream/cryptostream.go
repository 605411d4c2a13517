// Package cryptostream implements chunked authenticated encryption for
// local-driver blobs at rest.
//
// Ciphertext framing is self-describing:
//
//	header:  magic "SVE1" | version byte | 16-byte file salt
//	chunk:   4-byte BE ciphertext length | 12-byte nonce | AES-256-GCM ciphertext+tag
//
// Plaintext is processed in 64 KiB chunks. The chunk index and a final
// flag are bound into the GCM additional data, so chunks cannot be
// reordered, dropped, or truncated without failing authentication. The
// per-file key is derived from the process data key and the file salt, so
// two files encrypted from the same plaintext share no ciphertext.
package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// ChunkSize is the plaintext chunk length.
	ChunkSize = 64 * 1024

	version = 0x01

	nonceSize  = 12
	saltSize   = 16
	headerSize = 4 + 1 + saltSize

	// maxChunkCipher bounds a chunk read so corrupt length prefixes cannot
	// trigger huge allocations.
	maxChunkCipher = ChunkSize + 16
)

var magic = [4]byte{'S', 'V', 'E', '1'}

// ErrMalformed is returned when ciphertext framing is invalid or fails
// authentication.
var ErrMalformed = errors.New("cryptostream: malformed or corrupted ciphertext")

// Cipher performs streaming encryption with a process-level data key.
type Cipher struct {
	dataKey [32]byte
}

// New derives the process data key from the configured secret.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("cryptostream: empty secret")
	}
	c := &Cipher{dataKey: sha256.Sum256([]byte(secret))}
	return c, nil
}

// fileAEAD derives the per-file AEAD from the data key and file salt.
func (c *Cipher) fileAEAD(salt []byte) (cipher.AEAD, error) {
	h := sha256.New()
	h.Write(c.dataKey[:])
	h.Write(salt)
	block, err := aes.NewCipher(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// chunkAAD binds the chunk index and final flag into authentication.
func chunkAAD(index uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, index)
	if final {
		aad[8] = 1
	}
	return aad
}

// Encrypt streams plaintext from src into dst as framed ciphertext.
func (c *Cipher) Encrypt(dst io.Writer, src io.Reader) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("cryptostream: salt: %w", err)
	}

	header := make([]byte, 0, headerSize)
	header = append(header, magic[:]...)
	header = append(header, version)
	header = append(header, salt...)
	if _, err := dst.Write(header); err != nil {
		return err
	}

	aead, err := c.fileAEAD(salt)
	if err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	next := make([]byte, ChunkSize)
	nonce := make([]byte, nonceSize)
	lenPrefix := make([]byte, 4)

	// One chunk of read-ahead so the final chunk can be flagged as such
	// even when the plaintext length is an exact multiple of ChunkSize.
	n, err := io.ReadFull(src, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return c.writeChunk(dst, aead, nonce, lenPrefix, buf[:n], 0, true)
	}
	if err != nil {
		return err
	}

	var index uint64
	for {
		m, rerr := io.ReadFull(src, next)
		final := rerr == io.EOF || rerr == io.ErrUnexpectedEOF
		if rerr != nil && !final {
			return rerr
		}

		if m == 0 && final {
			return c.writeChunk(dst, aead, nonce, lenPrefix, buf[:n], index, true)
		}
		if err := c.writeChunk(dst, aead, nonce, lenPrefix, buf[:n], index, false); err != nil {
			return err
		}
		index++
		buf, next = next, buf
		n = m
		if final {
			return c.writeChunk(dst, aead, nonce, lenPrefix, buf[:n], index, true)
		}
	}
}

func (c *Cipher) writeChunk(dst io.Writer, aead cipher.AEAD, nonce, lenPrefix, plain []byte, index uint64, final bool) error {
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("cryptostream: nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plain, chunkAAD(index, final))
	binary.BigEndian.PutUint32(lenPrefix, uint32(len(sealed)))
	if _, err := dst.Write(lenPrefix); err != nil {
		return err
	}
	if _, err := dst.Write(nonce); err != nil {
		return err
	}
	_, err := dst.Write(sealed)
	return err
}

// Decrypt streams framed ciphertext from src into dst as plaintext. Any
// tampering, reordering or truncation fails with ErrMalformed.
func (c *Cipher) Decrypt(dst io.Writer, src io.Reader) error {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return ErrMalformed
	}
	if [4]byte(header[:4]) != magic || header[4] != version {
		return ErrMalformed
	}

	aead, err := c.fileAEAD(header[5:])
	if err != nil {
		return err
	}

	lenPrefix := make([]byte, 4)
	nonce := make([]byte, nonceSize)
	var index uint64
	var sawFinal bool

	for {
		_, err := io.ReadFull(src, lenPrefix)
		if err == io.EOF {
			if !sawFinal {
				return ErrMalformed
			}
			return nil
		}
		if err != nil {
			return ErrMalformed
		}
		if sawFinal {
			// Trailing data after the final chunk.
			return ErrMalformed
		}

		clen := binary.BigEndian.Uint32(lenPrefix)
		if clen > maxChunkCipher {
			return ErrMalformed
		}
		if _, err := io.ReadFull(src, nonce); err != nil {
			return ErrMalformed
		}
		sealed := make([]byte, clen)
		if _, err := io.ReadFull(src, sealed); err != nil {
			return ErrMalformed
		}

		plain, err := aead.Open(nil, nonce, sealed, chunkAAD(index, false))
		if err != nil {
			plain, err = aead.Open(nil, nonce, sealed, chunkAAD(index, true))
			if err != nil {
				return ErrMalformed
			}
			sawFinal = true
		}
		index++

		if _, err := dst.Write(plain); err != nil {
			return err
		}
	}
}

// CopyEncrypted pipelines decrypt into re-encrypt so an encrypted blob can
// be duplicated without materialising plaintext on disk. The destination
// gets a fresh salt and fresh nonces.
func (c *Cipher) CopyEncrypted(dst io.Writer, src io.Reader) error {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := c.Decrypt(pw, src)
		pw.CloseWithError(err)
		done <- err
	}()

	encErr := c.Encrypt(dst, pr)
	pr.Close()
	decErr := <-done

	if decErr != nil {
		return decErr
	}
	return encErr
}
