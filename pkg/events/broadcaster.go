package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-run/conductor/pkg/config"
)

// runStream holds one Run's event history (for catchup) and its live
// subscriber channels. Publishes for a given run are expected to come
// from a single goroutine (the run's current worker), matching the
// concurrency model's "Supervisor is single-threaded per Run"; reads come
// from however many SSE handlers are attached.
type runStream struct {
	mu          sync.Mutex
	seq         int64
	history     []Event
	historyCap  int
	subscribers map[string]*subscription
}

// subscription is one consumer's bounded, drop-oldest mailbox.
type subscription struct {
	ch      chan Event
	dropped int64
}

// Broadcaster fans out events per run with a bounded, drop-oldest buffer
// per subscriber (spec §4.8). Grounded on the teacher's ConnectionManager
// (pkg/events/manager.go): a map of per-channel subscriber sets guarded by
// its own mutex, auto-catchup on subscribe, and cleanup of empty channels
// — the WebSocket registration bookkeeping translated to SSE, and
// Postgres LISTEN/NOTIFY replaced by values already in process memory.
type Broadcaster struct {
	mu      sync.Mutex
	streams map[string]*runStream
	cfg     *config.EventConfig
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster(cfg *config.EventConfig) *Broadcaster {
	return &Broadcaster{streams: make(map[string]*runStream), cfg: cfg}
}

// Publish appends an event to runID's history and fans it out to every
// live subscriber, returning the event as persisted (with its assigned
// Seq and ID).
func (b *Broadcaster) Publish(runID string, t Type, payload map[string]any) Event {
	rs := b.streamFor(runID)

	rs.mu.Lock()
	rs.seq++
	e := Event{ID: uuid.NewString(), RunID: runID, Seq: rs.seq, Type: t, Payload: payload, Ts: time.Now()}

	rs.history = append(rs.history, e)
	if len(rs.history) > rs.historyCap {
		rs.history = rs.history[len(rs.history)-rs.historyCap:]
	}

	for _, sub := range rs.subscribers {
		sub.send(e)
	}
	rs.mu.Unlock()

	return e
}

// Subscribe registers a new consumer for runID and returns a channel of
// events plus a cancel function the caller must invoke when done. Events
// with Seq > sinceSeq already in history (bounded by the configured
// catchup limit) are replayed before any new, live event.
func (b *Broadcaster) Subscribe(runID string, sinceSeq int64) (<-chan Event, func()) {
	rs := b.streamFor(runID)

	sub := &subscription{ch: make(chan Event, b.cfg.BufferSize)}
	subID := uuid.NewString()

	rs.mu.Lock()
	for _, e := range catchupSince(rs.history, sinceSeq, b.cfg.CatchupLimit) {
		sub.send(e)
	}
	rs.subscribers[subID] = sub
	rs.mu.Unlock()

	cancel := func() { b.unsubscribe(runID, subID) }
	return sub.ch, cancel
}

func (b *Broadcaster) unsubscribe(runID, subID string) {
	b.mu.Lock()
	rs, ok := b.streams[runID]
	b.mu.Unlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	delete(rs.subscribers, subID)
	empty := len(rs.subscribers) == 0
	rs.mu.Unlock()

	if !empty || b.cfg.CleanupDelay <= 0 {
		return
	}

	time.AfterFunc(b.cfg.CleanupDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if current, ok := b.streams[runID]; ok {
			current.mu.Lock()
			stillEmpty := len(current.subscribers) == 0
			current.mu.Unlock()
			if stillEmpty {
				delete(b.streams, runID)
			}
		}
	})
}

func (b *Broadcaster) streamFor(runID string) *runStream {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.streams[runID]
	if !ok {
		rs = &runStream{historyCap: b.cfg.CatchupLimit, subscribers: make(map[string]*subscription)}
		b.streams[runID] = rs
	}
	return rs
}

// catchupSince returns the tail of history with Seq > sinceSeq, capped at
// limit entries (the most recent ones), mirroring the teacher's
// catchupLimit/catchup.overflow handling.
func catchupSince(history []Event, sinceSeq int64, limit int) []Event {
	var tail []Event
	for _, e := range history {
		if e.Seq > sinceSeq {
			tail = append(tail, e)
		}
	}
	if limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	return tail
}

// send is a non-blocking, drop-oldest enqueue. The caller (Publish) holds
// rs.mu, so concurrent sends to the same subscription are already
// serialized; only the subscription's own consumer races with this, and
// channel receives are safe to race against sends.
func (s *subscription) send(e Event) {
	select {
	case s.ch <- e:
		return
	default:
	}

	// Full: evict the two oldest queued events to make room for a synthetic
	// dropped marker followed by the real event. A producer never blocks on
	// a slow subscriber.
	before := s.dropped
	for i := 0; i < 2; i++ {
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
	if s.dropped > before {
		marker := Event{ID: uuid.NewString(), RunID: e.RunID, Seq: e.Seq, Type: TypeDropped, Payload: map[string]any{"count": s.dropped}, Ts: e.Ts}
		select {
		case s.ch <- marker:
		default:
		}
	}

	select {
	case s.ch <- e:
	default:
		// Only a one-slot buffer gets here (the marker took the slot); drop
		// this event rather than block the publisher.
	}
}
