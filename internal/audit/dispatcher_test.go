package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) {
	panic("sink exploded")
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher")
	}
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatalf("nil dispatcher reported drops")
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("event accepted after close")
	}
}

func TestDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_invalid"})
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked sink")
	}

	close(sink.gate)
	d.Close()
}

func TestPanickingSinkDoesNotStopDispatcher(t *testing.T) {
	counting := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, MultiSink([]Sink{counting, panicSink{}}))
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Close()

	if got := counting.count.Load(); got != 2 {
		t.Fatalf("expected both events delivered before the panic, got %d", got)
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "s1", Role: "student", Success: true})
	sink.Emit(context.Background(), Event{EventType: "logout", UserID: "s1"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.EventType != "login_success" || first.Role != "student" || !first.Success {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestRedisSinkPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, "audit")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	NewRedisSink(rdb, "", nil).Emit(ctx, Event{EventType: "session_revoked", UserID: "s9"})

	select {
	case msg := <-sub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.EventType != "session_revoked" || got.UserID != "s9" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message published")
	}
}

func TestRedisSinkSwallowsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	NewRedisSink(rdb, "audit", nil).Emit(context.Background(), Event{EventType: "logout"})
}

func TestEmitStampsTimestamp(t *testing.T) {
	got := make(chan Event, 1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, SinkFunc(func(_ context.Context, e Event) { got <- e }))
	defer d.Close()

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Emit(context.Background(), Event{EventType: "logout", Timestamp: fixed})

	if first := <-got; first.Timestamp.IsZero() {
		t.Fatalf("expected a stamped timestamp")
	}
	if second := <-got; !second.Timestamp.Equal(fixed) {
		t.Fatalf("explicit timestamp overwritten: %v", second.Timestamp)
	}
}

func TestDeliveryTimeoutBoundsSlowSink(t *testing.T) {
	var timedOut atomic.Int64
	slow := SinkFunc(func(ctx context.Context, _ Event) {
		<-ctx.Done()
		timedOut.Add(1)
	})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DeliveryTimeout: 20 * time.Millisecond}, slow)
	d.Emit(context.Background(), Event{EventType: "login_failure"})
	d.Emit(context.Background(), Event{EventType: "login_failure"})

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked on a slow sink")
	}
	if got := timedOut.Load(); got != 2 {
		t.Fatalf("expected 2 timed out deliveries, got %d", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, NoOpSink{})
	d.Close()
	d.Close()
}
