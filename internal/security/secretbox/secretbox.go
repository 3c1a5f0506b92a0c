// Package secretbox encrypts per-event OAuth secrets at rest with AES-256-GCM.
//
// The envelope format is hex(iv).hex(ciphertext).hex(tag). Decryption fails
// closed: any malformed or tampered envelope yields the empty string, so a
// corrupted stored credential degrades to "not configured" instead of
// crashing a request.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/weddary/weddary/internal/observability/logger"
)

const (
	nonceSize = 12 // AES-GCM standard nonce (96 bits)
	tagSize   = 16 // GCM auth tag (128 bits)
	keySize   = 32 // AES-256
	sep       = "."

	hkdfInfo = "weddary/secretbox/v1"
)

// Box holds a ready AEAD. Construct once at startup with the master key and
// inject it; nothing in here reads ambient state.
type Box struct {
	aead cipher.AEAD
}

// New derives the encryption key from masterKey via HKDF-SHA256 and
// initializes the cipher. masterKey must be 32 bytes.
func New(masterKey []byte) (*Box, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("secretbox: master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("secretbox: hkdf: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext into a hex(iv).hex(ct).hex(tag) envelope.
// Empty input round-trips to empty output without touching the cipher.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	sealed := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal output is ciphertext||tag; split so the envelope carries them apart.
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return hex.EncodeToString(nonce) + sep + hex.EncodeToString(ct) + sep + hex.EncodeToString(tag), nil
}

// Decrypt opens an envelope produced by Encrypt. The empty string decrypts
// to the empty string. Malformed envelopes, bad hex and failed tag
// verification all return "" after a warning log; Decrypt never errors on
// bad input.
func (b *Box) Decrypt(envelope string) string {
	if envelope == "" {
		return ""
	}
	parts := strings.Split(envelope, sep)
	if len(parts) != 3 {
		logger.L().Warn("secretbox: envelope part count mismatch", logger.Component("secretbox"))
		return ""
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		logger.L().Warn("secretbox: malformed iv", logger.Component("secretbox"))
		return ""
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		logger.L().Warn("secretbox: malformed ciphertext", logger.Component("secretbox"))
		return ""
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		logger.L().Warn("secretbox: malformed tag", logger.Component("secretbox"))
		return ""
	}
	pt, err := b.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		logger.L().Warn("secretbox: authentication failed", logger.Component("secretbox"))
		return ""
	}
	return string(pt)
}
