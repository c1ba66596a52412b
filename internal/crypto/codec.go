package crypto

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Blob layout: salt (16) | nonce (12) | ciphertext + tag (16).
const (
	SaltSize         = 16
	TagSize          = 16
	HeaderSize       = SaltSize + NonceSize
	MinBlobSize      = HeaderSize + TagSize
	PBKDF2Iterations = 100000
)

// DeriveKey derives the AES-256 key for a secret and salt with
// PBKDF2-HMAC-SHA256.
func DeriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// Encrypt seals payload under a key derived from secret. Every call draws a
// fresh salt and nonce, so equal inputs never produce equal blobs.
func Encrypt(payload, secret string) ([]byte, error) {
	salt, err := randomBytes(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(DeriveKey(secret, salt))
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, HeaderSize+len(payload)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return gcm.Seal(blob, nonce, []byte(payload), nil), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong secret or any modified
// byte yields ErrAuthentication.
func Decrypt(blob []byte, secret string) (string, error) {
	if len(blob) < MinBlobSize {
		return "", ErrCiphertextTooShort
	}

	salt := blob[:SaltSize]
	nonce := blob[SaltSize:HeaderSize]
	ciphertext := blob[HeaderSize:]

	gcm, err := newGCM(DeriveKey(secret, salt))
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// EncryptJSON marshals v and encrypts the result.
func EncryptJSON(v any, secret string) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Encrypt(string(payload), secret)
}

// DecryptJSON decrypts blob and unmarshals the payload into v.
func DecryptJSON(blob []byte, secret string, v any) error {
	payload, err := Decrypt(blob, secret)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
