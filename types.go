package schoolauth

import (
	"context"
	"io"

	internalaudit "github.com/maxmusicschool/schoolauth/internal/audit"
	"github.com/maxmusicschool/schoolauth/internal/limiters"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	// RoleAdmin is a teacher whose record carries the admin flag.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of a user as seen by the engine.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountInactive
	AccountOnHold
)

// Identity is the verified caller attached to requests by the auth gate.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// User is what a Directory returns for login and refresh.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	Status       AccountStatus
	// PendingAmount is reported in *AccountHoldError.
	PendingAmount float64
}

// Directory resolves users for the engine. Unknown users yield an error
// wrapping ErrUserNotFound; any other error is treated as an upstream
// failure.
type Directory interface {
	// LookupByEmail finds a user of the given login role. A teacher lookup
	// returns RoleAdmin for admin teachers.
	LookupByEmail(ctx context.Context, role Role, email string) (User, error)
	LookupByID(ctx context.Context, userID string) (User, error)
}

// PasswordUpgrader is optionally implemented by a Directory to store a
// rehashed password after a successful login with a legacy hash.
type PasswordUpgrader interface {
	UpgradePasswordHash(ctx context.Context, userID string, role Role, hash string) error
}

// LoginRequest is the input of Engine.Login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// UserInfo is the public part of a logged-in user.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         UserInfo `json:"user"`
}

// TokenPair is returned by a successful refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Rate-limit policies accepted by Engine.CheckRate.
const (
	RatePolicyAuth = limiters.PolicyAuth
	RatePolicyAPI  = limiters.PolicyAPI
)

// RateDecision is the outcome of Engine.CheckRate.
type RateDecision = rate.Decision

// Logger is the structured logger accepted by the builder.
type Logger = logging.Logger

// RedisClient is the go-redis client interface accepted by the builder.
type RedisClient = redis.UniversalClient

// AuditEvent is one security-relevant event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events, one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink creates an [AuditSink] that writes events through l at info
// level.
func NewLogSink(l Logger) AuditSink {
	return internalaudit.NewLogSink(l)
}

// NewRedisSink creates an [AuditSink] publishing JSON events on channel.
func NewRedisSink(client RedisClient, channel string, l Logger) AuditSink {
	return internalaudit.NewRedisSink(client, channel, l)
}

// MultiSink fans events out to every sink in order.
func MultiSink(sinks ...AuditSink) AuditSink {
	return internalaudit.MultiSink(sinks)
}
