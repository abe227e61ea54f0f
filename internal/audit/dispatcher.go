package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of
	// blocking the emitting flow. Events matched by Critical are never
	// discarded this way; they wait for space like in blocking mode.
	DropIfFull bool
	Critical   func(Event) bool
	// FlushTimeout bounds how long Close waits for the sink. Zero waits
	// until the buffer is empty.
	FlushTimeout time.Duration
	// OnDrop, when set, is called synchronously for every discarded event.
	OnDrop func(Event)
}

// Dispatcher forwards audit events to a sink from one background
// goroutine. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan Event
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	closing atomic.Bool
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		queue:   make(chan Event, max(cfg.BufferSize, 1)),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event for delivery. Non-critical events never block under
// DropIfFull; everything else waits for buffer space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull && !d.critical(event) {
		select {
		case d.queue <- event:
		default:
			d.discard(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.discard(event)
	case <-d.stop:
		d.discard(event)
	}
}

func (d *Dispatcher) critical(event Event) bool {
	return d.cfg.Critical != nil && d.cfg.Critical(event)
}

func (d *Dispatcher) discard(event Event) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event)
	}
}

// Close stops accepting events and flushes what is buffered, waiting at
// most FlushTimeout when one is set. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		if d.cfg.FlushTimeout <= 0 {
			<-d.stopped
			return
		}
		timer := time.NewTimer(d.cfg.FlushTimeout)
		defer timer.Stop()
		select {
		case <-d.stopped:
		case <-timer.C:
		}
	})
}

// Dropped returns the number of events discarded so far.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
