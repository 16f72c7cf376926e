package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/segment-reservation/internal/logger"
)

// Sink delivers one event to an external system.
type Sink interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// sendTimeout bounds a single delivery attempt.
const sendTimeout = 5 * time.Second

// Dispatcher is a fire-and-forget publisher. Publish never blocks: when the
// buffer is full the event is dropped and a warning is logged. Delivery
// failures are logged and otherwise ignored.
type Dispatcher struct {
	sink   Sink
	log    *logger.Logger
	events chan Event
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewDispatcher starts the delivery goroutine. buffer below 1 is treated as 1.
func NewDispatcher(sink Sink, buffer int, log *logger.Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	d := &Dispatcher{
		sink:   sink,
		log:    log,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues ev. It is safe to call after Close; the event is dropped.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		d.log.Warn("NOTIFY", fmt.Sprintf("buffer full, dropped %s event %s", ev.Type, ev.ID))
	}
}

// Dropped returns how many events were discarded so far.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close stops accepting events, drains the buffer and closes the sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.done
	return d.sink.Close()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.sink.Send(ctx, ev); err != nil {
			d.log.Error("NOTIFY", fmt.Sprintf("deliver %s event %s: %v", ev.Type, ev.ID, err))
		}
		cancel()
	}
}
