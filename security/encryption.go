// Package security provides security features for the connect flow including
// token encryption at rest, anti-forgery state handling, rate limiting, and
// audit logging.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Envelope layout constants. Stored envelopes are
// base64(nonce || authTag || ciphertext), matching rows written before this
// implementation existed.
const (
	keyLength   = 32 // AES-256
	nonceLength = 12 // standard GCM nonce
	tagLength   = 16 // GCM authentication tag
)

// ErrEncryptionDisabled is returned by Encrypt when no encryption key is
// configured. Callers must not store plaintext silently; surfacing this error
// lets the flow fail loudly instead.
var ErrEncryptionDisabled = errors.New("security: token encryption key not configured")

// Encryptor handles token encryption at rest using AES-256-GCM.
type Encryptor struct {
	aead    cipher.AEAD
	enabled bool
}

// NewEncryptor creates a new encryptor.
// If key is nil or empty, encryption is disabled: Encrypt fails and Decrypt
// passes stored values through unchanged.
// The key must be exactly 32 bytes for AES-256.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return &Encryptor{enabled: false}, nil
	}

	if len(key) != keyLength {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes for AES-256, got %d", keyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{
		aead:    aead,
		enabled: true,
	}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with a fresh random nonce per
// call. Returns base64(nonce || authTag || ciphertext).
// Returns ErrEncryptionDisabled when no key is configured.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if !e.enabled {
		return "", ErrEncryptionDisabled
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal produces ciphertext||tag; the stored envelope is
	// nonce||tag||ciphertext, so split and reorder.
	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]

	envelope := make([]byte, 0, nonceLength+tagLength+len(body))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, body...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// DecryptResult is the outcome of Decrypt.
//
// Legacy marks a passthrough: the stored value was returned unchanged because
// it could not be treated as a valid envelope (pre-encryption plaintext row,
// encryption disabled, or failed authentication). Callers may use Legacy to
// trigger re-encryption on read; Reason is for logging only.
type DecryptResult struct {
	Value  string
	Legacy bool
	Reason string
}

// Decrypt decrypts a stored envelope produced by Encrypt. It never fails:
// values that do not decrypt are handed back unchanged as a legacy
// passthrough so rows written before encryption was introduced keep working
// without a data migration.
//
// The passthrough also absorbs corrupted ciphertexts; a tampered envelope is
// returned as the stored string, never as wrong plaintext.
func (e *Encryptor) Decrypt(stored string) DecryptResult {
	if !e.enabled {
		return DecryptResult{Value: stored, Legacy: true, Reason: "encryption disabled"}
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return DecryptResult{Value: stored, Legacy: true, Reason: "not base64"}
	}
	if len(raw) < nonceLength+tagLength {
		return DecryptResult{Value: stored, Legacy: true, Reason: "envelope too short"}
	}

	nonce := raw[:nonceLength]
	tag := raw[nonceLength : nonceLength+tagLength]
	body := raw[nonceLength+tagLength:]

	// Reassemble ciphertext||tag for Open.
	sealed := make([]byte, 0, len(body)+tagLength)
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)

	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return DecryptResult{Value: stored, Legacy: true, Reason: "authentication failed"}
	}

	return DecryptResult{Value: string(plaintext)}
}

// Enabled returns true if encryption is enabled.
func (e *Encryptor) Enabled() bool {
	return e.enabled
}

// GenerateKey generates a new 32-byte encryption key for AES-256.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64-encoded encryption key.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyLength, len(key))
	}
	return key, nil
}

// KeyToBase64 encodes an encryption key to base64.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
