package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Event names carried in Message.Event.
const (
	EventBatchChange     = "batch:change"
	EventAttendance      = "attendance:update"
	EventRequestStatus   = "request:status"
	EventChangeRequested = "request:new"
)

// TeachersChannel receives messages addressed to every teacher.
const TeachersChannel = "notifications:teachers"

// UserChannel names the channel of a single user.
func UserChannel(role, userID string) string {
	return "notifications:" + role + ":" + userID
}

// Message is the JSON payload published on a channel.
type Message struct {
	Event     string            `json:"event"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Bus publishes messages to channels.
type Bus interface {
	Publish(ctx context.Context, channel string, m Message) error
}

// ErrClosed is returned by Subscription.Next after Close.
var ErrClosed = errors.New("subscription closed")

// RedisBus is a Bus over Redis PUBLISH/SUBSCRIBE.
type RedisBus struct {
	client  redis.UniversalClient
	timeout time.Duration
	logger  logging.Logger
	now     func() time.Time
}

func NewRedisBus(client redis.UniversalClient, l logging.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		timeout: time.Second,
		logger:  logging.OrNop(l).With("component", "notify"),
		now:     time.Now,
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, m Message) error {
	if channel == "" {
		return errors.New("notify: empty channel")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = b.now().UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", channel, err)
	}
	b.logger.Debug(ctx, "notification published", "channel", channel, "event", m.Event)
	return nil
}

// Subscription delivers decoded messages from one or more channels.
type Subscription struct {
	ps *redis.PubSub
}

// Subscribe waits for Redis to confirm the subscription before returning,
// so messages published afterwards are not lost.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	if len(channels) == 0 {
		return nil, errors.New("notify: no channels")
	}
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notify: subscribe: %w", err)
	}
	return &Subscription{ps: ps}, nil
}

// Next blocks until a message arrives or ctx is done. It returns the
// channel the message was published on.
func (s *Subscription) Next(ctx context.Context) (string, Message, error) {
	for {
		raw, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.ErrClosed) {
				return "", Message{}, ErrClosed
			}
			return "", Message{}, err
		}
		var m Message
		if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
			continue
		}
		return raw.Channel, m, nil
	}
}

func (s *Subscription) Close() error {
	return s.ps.Close()
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, string, Message) error { return nil }
