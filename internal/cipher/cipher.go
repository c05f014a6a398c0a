// Package cipher implements the portal's symmetric password encryption:
// AES-256 in counter mode over "hex(iv):hex(ciphertext)" strings.
package cipher

import (
	"context"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// KeyLength is the AES-256 key size in bytes.
const KeyLength = 32

// IVLength is the size of the per-message initialization vector.
const IVLength = aes.BlockSize

var (
	// ErrDecryption is returned when an encoded value cannot be decrypted:
	// missing separator, bad hex, wrong IV size or a wrong key.
	ErrDecryption = errors.New("failed to decrypt value")
	// ErrInvalidKey is returned when the key material is not 32 bytes.
	ErrInvalidKey = errors.New("cipher key must be 32 bytes")
	// ErrKeyUnavailable is returned when the key source fails.
	ErrKeyUnavailable = errors.New("cipher key unavailable")
)

// KeySource supplies raw key material.
type KeySource interface {
	CipherKey(ctx context.Context) ([]byte, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) ([]byte, error)

// CipherKey calls f.
func (f KeySourceFunc) CipherKey(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticKey returns a KeySource that always yields key.
func StaticKey(key []byte) KeySource {
	return KeySourceFunc(func(context.Context) ([]byte, error) {
		return key, nil
	})
}

// Cipher encrypts and decrypts portal passwords. The key is fetched on
// first use and kept for the life of the Cipher; concurrent first callers
// may each fetch it, the first stored block wins.
type Cipher struct {
	keys   KeySource
	block  atomic.Pointer[stdcipher.Block]
	logger *slog.Logger
}

// New creates a Cipher that lazily loads its key from keys.
func New(keys KeySource, logger *slog.Logger) *Cipher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cipher{keys: keys, logger: logger}
}

func (c *Cipher) blockCipher(ctx context.Context) (stdcipher.Block, error) {
	if b := c.block.Load(); b != nil {
		return *b, nil
	}

	key, err := c.keys.CipherKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	if c.block.CompareAndSwap(nil, &block) {
		c.logger.Debug("cipher key loaded")
		return block, nil
	}
	return *c.block.Load(), nil
}

// Encrypt encrypts plaintext under a fresh random IV and returns
// "hex(iv):hex(ciphertext)".
func (c *Cipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	block, err := c.blockCipher(ctx)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	out := make([]byte, len(plaintext))
	stdcipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Everything after the first ':' is treated as
// ciphertext.
func (c *Cipher) Decrypt(ctx context.Context, encoded string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing separator", ErrDecryption)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: iv is not hex", ErrDecryption)
	}
	if len(iv) != IVLength {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, IVLength, len(iv))
	}

	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not hex", ErrDecryption)
	}

	block, err := c.blockCipher(ctx)
	if err != nil {
		return "", err
	}

	out := make([]byte, len(ciphertext))
	stdcipher.NewCTR(block, iv).XORKeyStream(out, ciphertext)

	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", ErrDecryption)
	}
	return string(out), nil
}

// DecryptBase64 decrypts a base64-wrapped "iv:ciphertext" value.
func (c *Cipher) DecryptBase64(ctx context.Context, value string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", ErrDecryption)
	}
	return c.Decrypt(ctx, string(decoded))
}

// LooksEncrypted reports whether s has the shape of an Encrypt result.
// It is a cheap format check, not a guarantee that Decrypt will succeed.
func LooksEncrypted(s string) bool {
	ivHex, ctHex, ok := strings.Cut(s, ":")
	if !ok || len(ivHex) != 2*IVLength || len(ctHex)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(ivHex)
	return err == nil
}
