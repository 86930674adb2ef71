package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ChannelSink hands events to a buffered channel, waiting for space until
// the delivery deadline.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONWriterSink{enc: enc}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// MultiSink fans an event out to every non-nil sink in order.
func MultiSink(sinks []Sink) Sink {
	var out []Sink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(ctx context.Context, event Event) {
		for _, s := range out {
			s.Emit(ctx, event)
		}
	})
}

// LogSink writes events as structured log records.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(l).With("component", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	args := []any{
		"event", event.EventType,
		"success", event.Success,
	}
	if event.UserID != "" {
		args = append(args, "user_id", event.UserID)
	}
	if event.Role != "" {
		args = append(args, "role", event.Role)
	}
	if event.IP != "" {
		args = append(args, "ip", event.IP)
	}
	if event.Error != "" {
		args = append(args, "error", event.Error)
	}
	for k, v := range event.Metadata {
		args = append(args, "meta."+k, v)
	}
	s.logger.Info(ctx, "audit", args...)
}

// DefaultRedisChannel is the pub/sub channel of RedisSink.
const DefaultRedisChannel = "audit"

// RedisSink publishes JSON events on a pub/sub channel. Publish failures
// are logged at most once a minute and otherwise dropped.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	logger  logging.Logger
	warn    rate.Sometimes
}

func NewRedisSink(client redis.UniversalClient, channel string, l logging.Logger) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{
		client:  client,
		channel: channel,
		timeout: time.Second,
		logger:  logging.OrNop(l).With("component", "audit"),
		warn:    rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

func (s *RedisSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.client == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.warn.Do(func() {
			s.logger.Warn(ctx, "audit publish failed", "channel", s.channel, "err", err)
		})
	}
}
