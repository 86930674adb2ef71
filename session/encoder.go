package session

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

const (
	recordVersionCurrent = 1
	recordLength         = 1 + sha256.Size + 8
)

var errCorruptRecord = errors.New("corrupt refresh record")

// Record is the value stored under a user's refresh key. The raw token is
// never persisted, only its SHA-256 digest.
type Record struct {
	Hash     [32]byte
	IssuedAt int64
}

// HashToken returns the digest stored for a refresh token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// Encode serialises r as version byte, digest, big-endian issued-at.
func Encode(r Record) []byte {
	buf := make([]byte, recordLength)
	buf[0] = recordVersionCurrent
	copy(buf[1:1+sha256.Size], r.Hash[:])
	binary.BigEndian.PutUint64(buf[1+sha256.Size:], uint64(r.IssuedAt))
	return buf
}

// Decode parses a stored record. Unknown versions and wrong lengths are
// reported as corrupt.
func Decode(data []byte) (Record, error) {
	var r Record
	if len(data) != recordLength || data[0] != recordVersionCurrent {
		return r, errCorruptRecord
	}
	copy(r.Hash[:], data[1:1+sha256.Size])
	r.IssuedAt = int64(binary.BigEndian.Uint64(data[1+sha256.Size:]))
	if r.IssuedAt <= 0 {
		return Record{}, errCorruptRecord
	}
	return r, nil
}
