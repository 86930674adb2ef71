package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"
)

// DefaultMaxLength bounds password input when Config.MaxLength is zero.
const DefaultMaxLength = 1024

var (
	// ErrPasswordTooShort is returned by Hash for passwords under MinLength bytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned by Hash and Verify for input over MaxLength bytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrMalformedHash wraps every PHC parse failure.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Config holds Argon2id cost parameters and the accepted length range of
// passwords.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength applies to Hash only; existing hashes verify regardless.
	MinLength int
	// MaxLength caps the input of both Hash and Verify. Zero means DefaultMaxLength.
	MaxLength int
}

// DefaultConfig returns 64 MiB, 3 passes, 2 lanes, 16-byte salt, 32-byte key
// and an 8-byte minimum.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
		MaxLength:   DefaultMaxLength,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case c.MinLength < 0:
		return errors.New("password min length must be >= 0")
	case c.MaxLength < c.MinLength:
		return errors.New("password max length must be >= min length")
	}
	return nil
}

// Argon2 hashes new passwords and verifies argon2id PHC strings.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the minimum cost parameters.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Input is raw bytes with no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < a.config.MinLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrPasswordTooShort, a.config.MinLength)
	}
	if len(password) > a.config.MaxLength {
		return "", ErrPasswordTooLong
	}
	return a.hash(password)
}

// hash skips the length policy; the timing dummy uses it directly.
func (a *Argon2) hash(password string) (string, error) {
	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password, a.config.KeyLength)
	return p.String(), nil
}

// Verify recomputes the key with the parameters stored in encoded and
// compares in constant time. A malformed encoded value wraps ErrMalformedHash.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.config.MaxLength {
		return false, ErrPasswordTooLong
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	computed := p.derive(password, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength
	return weaker, nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

// String encodes salt and key as unpadded base64, the PHC convention.
func (p phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

func parsePHC(encoded string) (phc, error) {
	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return phc{}, malformed("unsupported algorithm")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return phc{}, malformed("expected 6 fields")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return phc{}, malformed("missing version")
	}
	if version != argon2.Version {
		return phc{}, malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var p phc
	if n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil || n != 3 {
		return phc{}, malformed("invalid parameters")
	}
	if fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism) != fields[1] {
		return phc{}, malformed("invalid parameters")
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return phc{}, malformed("parameters below minimum")
	}

	var err error
	if p.salt, err = decodeB64(fields[2]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return phc{}, malformed("invalid salt")
	}
	if p.key, err = decodeB64(fields[3]); err != nil || len(p.key) == 0 {
		return phc{}, malformed("invalid key")
	}
	return p, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
