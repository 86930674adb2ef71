package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme identifies how a stored credential was produced.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeArgon2id
	SchemeBcrypt
	SchemePlaintext
)

// ErrLegacyPlaintext is returned when a stored credential is unhashed and
// legacy plaintext verification is disabled.
var ErrLegacyPlaintext = errors.New("plaintext credential rejected")

// Detect classifies a stored credential by prefix.
func Detect(stored string) Scheme {
	switch {
	case stored == "":
		return SchemeUnknown
	case strings.HasPrefix(stored, argon2Prefix):
		return SchemeArgon2id
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return SchemeBcrypt
	default:
		return SchemePlaintext
	}
}

// Verifier checks passwords against any stored scheme the school data may
// contain. New hashes are always argon2id.
type Verifier struct {
	argon          *Argon2
	allowPlaintext bool
	dummy          string
}

// NewVerifier builds a Verifier. allowPlaintext enables constant-time
// comparison against unhashed stored values imported from old records.
func NewVerifier(argon *Argon2, allowPlaintext bool) (*Verifier, error) {
	if argon == nil {
		return nil, errors.New("password: verifier requires an argon2 hasher")
	}
	dummy, err := argon.hash("schoolauth-timing-equaliser")
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: argon, allowPlaintext: allowPlaintext, dummy: dummy}, nil
}

// Hash delegates to the argon2id hasher.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify reports whether password matches stored.
func (v *Verifier) Verify(password, stored string) (bool, error) {
	switch Detect(stored) {
	case SchemeArgon2id:
		return v.argon.Verify(password, stored)
	case SchemeBcrypt:
		if len(password) > v.argon.config.MaxLength {
			return false, ErrPasswordTooLong
		}
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	case SchemePlaintext:
		if !v.allowPlaintext {
			return false, ErrLegacyPlaintext
		}
		a := sha256.Sum256([]byte(password))
		b := sha256.Sum256([]byte(stored))
		return subtle.ConstantTimeCompare(a[:], b[:]) == 1, nil
	default:
		return false, errors.New("password: empty stored credential")
	}
}

// VerifyDummy burns the cost of one argon2id verification. Login calls it
// for unknown users so response time does not reveal account existence.
func (v *Verifier) VerifyDummy(password string) {
	if len(password) > v.argon.config.MaxLength {
		password = password[:v.argon.config.MaxLength]
	}
	_, _ = v.argon.Verify(password, v.dummy)
}

// NeedsRehash reports whether stored should be replaced with a fresh
// argon2id hash after a successful verification.
func (v *Verifier) NeedsRehash(stored string) bool {
	if Detect(stored) != SchemeArgon2id {
		return true
	}
	upgrade, err := v.argon.NeedsUpgrade(stored)
	return err != nil || upgrade
}
