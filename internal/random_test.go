package internal

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestNewSecret(t *testing.T) {
	a, err := NewSecret(MinSecretSize)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	b, err := NewSecret(MinSecretSize)
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if len(a) != MinSecretSize {
		t.Fatalf("expected %d bytes, got %d", MinSecretSize, len(a))
	}
	if bytes.Equal(a, b) {
		t.Fatal("two secrets are equal")
	}

	if _, err := NewSecret(8); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestNewSecretStringIsURLSafe(t *testing.T) {
	s, err := NewSecretString(48)
	if err != nil {
		t.Fatalf("NewSecretString: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 48 {
		t.Fatalf("expected 48 bytes, got %d", len(raw))
	}
}
