package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// MinSecretSize is the smallest signing secret NewSecret hands out.
const MinSecretSize = 32

// NewSecret returns size bytes from crypto/rand.
func NewSecret(size int) ([]byte, error) {
	if size < MinSecretSize {
		return nil, errors.New("secret size too small")
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewSecretString returns a base64url encoded secret of size random bytes,
// suitable for an environment file.
func NewSecretString(size int) (string, error) {
	b, err := NewSecret(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
