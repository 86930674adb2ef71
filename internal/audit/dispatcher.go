package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/logging"
	"golang.org/x/time/rate"
)

const defaultDeliveryTimeout = 5 * time.Second

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; overflow is counted in Dropped.
	DropIfFull bool
	// DeliveryTimeout bounds each Sink.Emit call. Default 5s.
	DeliveryTimeout time.Duration
	Logger          logging.Logger
}

// Dispatcher queues events and delivers them to one sink from a single
// goroutine, so request paths never wait on audit I/O. A panicking sink
// loses the event but not the dispatcher.
type Dispatcher struct {
	sink       Sink
	logger     logging.Logger
	timeout    time.Duration
	dropIfFull bool

	// mu guards closed and sends on queue against Close.
	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	stopped chan struct{}

	dropped  atomic.Uint64
	dropWarn rate.Sometimes
}

// NewDispatcher returns nil when cfg is disabled; a nil *Dispatcher accepts
// and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logging.OrNop(cfg.Logger).With("component", "audit"),
		timeout:    cfg.DeliveryTimeout,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stopped:    make(chan struct{}),
		dropWarn:   rate.Sometimes{First: 1, Interval: time.Minute},
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error(ctx, "audit sink panicked", "event", event.EventType, "panic", p)
		}
	}()
	d.sink.Emit(ctx, event)
}

// Emit queues event, stamping it with the current time when unset. Events
// emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.dropIfFull {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		}
		return
	}
	select {
	case d.queue <- event:
	default:
		total := d.dropped.Add(1)
		d.dropWarn.Do(func() {
			d.logger.Warn(ctx, "audit buffer full, dropping events", "dropped_total", total)
		})
	}
}

// Close stops accepting events and waits until the queue has drained into
// the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

// Dropped reports how many events DropIfFull discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
