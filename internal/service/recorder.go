package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

// MeetingRecorder observes room lifecycle. The engine calls Record while
// holding its lock, so implementations must return immediately.
type MeetingRecorder interface {
	Record(ev domain.MeetingEvent)
}

type MeetingStore interface {
	Insert(ctx context.Context, ev domain.MeetingEvent) error
}

// AsyncRecorder queues meeting events and writes them to a MeetingStore
// from a single worker goroutine. A full queue drops the event.
type AsyncRecorder struct {
	store   MeetingStore
	queue   chan domain.MeetingEvent
	timeout time.Duration

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

func NewAsyncRecorder(store MeetingStore, queueSize int) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &AsyncRecorder{
		store:   store,
		queue:   make(chan domain.MeetingEvent, queueSize),
		timeout: 5 * time.Second,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *AsyncRecorder) Record(ev domain.MeetingEvent) {
	select {
	case <-r.closing:
		return
	default:
	}

	select {
	case r.queue <- ev:
	default:
		slog.Warn("meeting log queue full, event dropped",
			"room", ev.RoomKey, "kind", ev.Kind)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-r.closing:
			// drain what was queued before Close
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *AsyncRecorder) write(ev domain.MeetingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Insert(ctx, ev); err != nil {
		slog.Warn("meeting log write failed", "room", ev.RoomKey, "kind", ev.Kind, "err", err)
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.closing) })

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
