package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ty2499/filiova-learning-platform-sub004/internal/domain"
)

const defaultMailboxSize = 32

var ErrDispatcherClosed = errors.New("usecase: dispatcher closed")

type Processor interface {
	Process(ctx context.Context, ev domain.InboundEvent) error
}

// Dispatcher serializes processing per channel address. Each address with
// pending events has one mailbox drained by one goroutine, so events for the
// same party never interleave while different parties run in parallel.
type Dispatcher struct {
	proc     Processor
	log      *slog.Logger
	capacity int
	base     context.Context

	mu        sync.Mutex
	mailboxes map[string]*mailbox
	closed    bool
	wg        sync.WaitGroup

	dropped      atomic.Int64
	droppedCount metric.Int64Counter
}

type mailbox struct {
	queue []domain.InboundEvent
}

// NewDispatcher returns a dispatcher feeding proc. Processing runs detached
// from ctx cancellation but keeps its values.
func NewDispatcher(ctx context.Context, proc Processor, capacity int, log *slog.Logger) (*Dispatcher, error) {
	if proc == nil {
		return nil, errors.New("usecase: processor must not be nil")
	}
	if capacity <= 0 {
		capacity = defaultMailboxSize
	}
	if log == nil {
		log = slog.Default()
	}
	counter, err := otel.Meter(meterName).Int64Counter(
		"chatbot.dispatch.dropped",
		metric.WithDescription("Inbound events dropped before processing."),
	)
	if err != nil {
		log.Warn("dispatch drop counter unavailable", "err", err)
	}
	return &Dispatcher{
		proc:         proc,
		log:          log,
		capacity:     capacity,
		base:         context.WithoutCancel(ctx),
		mailboxes:    make(map[string]*mailbox),
		droppedCount: counter,
	}, nil
}

// Submit queues ev behind any pending events for the same address. It never
// blocks; a full mailbox drops the event.
func (d *Dispatcher) Submit(ev domain.InboundEvent) error {
	key := domain.NormalizeAddress(ev.From)
	if key == "" {
		d.drop(ev, "no_address")
		return newError(ErrorInvalidEvent, "missing_sender", nil)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.drop(ev, "closed")
		return ErrDispatcherClosed
	}
	mb, running := d.mailboxes[key]
	if !running {
		mb = &mailbox{}
		d.mailboxes[key] = mb
	}
	if len(mb.queue) >= d.capacity {
		d.mu.Unlock()
		d.drop(ev, "mailbox_full")
		return fmt.Errorf("usecase: mailbox full for %s", key)
	}
	mb.queue = append(mb.queue, ev)
	if !running {
		d.wg.Add(1)
		go d.drain(key, mb)
	}
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) drain(key string, mb *mailbox) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(mb.queue) == 0 {
			delete(d.mailboxes, key)
			d.mu.Unlock()
			return
		}
		ev := mb.queue[0]
		mb.queue[0] = domain.InboundEvent{}
		mb.queue = mb.queue[1:]
		d.mu.Unlock()

		d.process(ev)
	}
}

func (d *Dispatcher) process(ev domain.InboundEvent) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("event processing panic", "address", ev.From, "message_id", ev.ProviderMessageID, "panic", fmt.Sprint(p))
		}
	}()
	if err := d.proc.Process(d.base, ev); err != nil {
		d.log.Error("event processing failed", "address", ev.From, "message_id", ev.ProviderMessageID, "err", err)
	}
}

func (d *Dispatcher) drop(ev domain.InboundEvent, reason string) {
	d.dropped.Add(1)
	if d.droppedCount != nil {
		d.droppedCount.Add(d.base, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	d.log.Warn("inbound event dropped", "address", ev.From, "message_id", ev.ProviderMessageID, "reason", reason)
}

// Dropped reports how many events were never processed.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Pending returns the number of addresses with queued or running work.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

// Wait blocks until every mailbox has drained or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(ctx)
}
