package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned (wrapped) whenever Redis cannot serve a
// request. Callers must treat it as "no valid session".
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRefreshMismatch is returned by RotateRefreshToken when the stored record
// is absent or does not match the presented token.
var ErrRefreshMismatch = errors.New("refresh token mismatch")

// DefaultPrefix is the key namespace for refresh records.
const DefaultPrefix = "refresh_token"

// DefaultTTL is the lifetime of a stored refresh record.
const DefaultTTL = 7 * 24 * time.Hour

const (
	rotateStatusMismatch int64 = 0
	rotateStatusRotated  int64 = 1
	rotateStatusCorrupt  int64 = 2
)

// KEYS[1] refresh key. ARGV[1] presented digest, ARGV[2] next record,
// ARGV[3] ttl in milliseconds.
const rotateRefreshScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data ~= 41 or string.byte(data, 1) ~= 1 then
  redis.call("DEL", KEYS[1])
  return 2
end
if string.sub(data, 2, 33) ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", tonumber(ARGV[3]))
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Store is a Redis-backed refresh-token store. At most one token per user is
// valid at any time: storing a new one replaces the old.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a session [Store]. An empty prefix selects
// [DefaultPrefix]; a non-positive ttl selects [DefaultTTL].
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

// TTL reports the lifetime applied to stored records.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *Store) record(token string) []byte {
	return Encode(Record{Hash: HashToken(token), IssuedAt: s.now().Unix()})
}

// StoreRefreshToken overwrites the user's refresh record with token.
//
//	Performance: 1 Redis SET.
func (s *Store) StoreRefreshToken(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return errors.New("session: user id and token are required")
	}
	if err := s.redis.Set(ctx, s.key(userID), s.record(token), s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// VerifyRefreshToken reports whether token is the user's current refresh
// token. Absent, expired, corrupt and mismatched records all yield false.
// When Redis fails it returns false together with a wrapped
// [ErrRedisUnavailable].
//
//	Performance: 1 Redis GET (plus DEL for corrupt records).
func (s *Store) VerifyRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	if userID == "" || token == "" {
		return false, nil
	}

	key := s.key(userID)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return false, nil
	}

	presented := HashToken(token)
	return subtle.ConstantTimeCompare(rec.Hash[:], presented[:]) == 1, nil
}

// RotateRefreshToken atomically replaces presented with next. Exactly one of
// several concurrent rotations using the same presented token succeeds; the
// others get [ErrRefreshMismatch].
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
func (s *Store) RotateRefreshToken(ctx context.Context, userID, presented, next string) error {
	if userID == "" || presented == "" || next == "" {
		return ErrRefreshMismatch
	}

	presentedHash := HashToken(presented)
	code, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID)},
		presentedHash[:],
		s.record(next),
		s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch code {
	case rotateStatusRotated:
		return nil
	case rotateStatusMismatch, rotateStatusCorrupt:
		return ErrRefreshMismatch
	default:
		return fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, code)
	}
}

// RemoveRefreshToken deletes the user's refresh record. Removing an absent
// record is a no-op.
func (s *Store) RemoveRefreshToken(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
