// Package eventlog provides the append-only audit journal that is the single
// source of truth for reconstructing order and position state.
//
// Every state transition in the core writes exactly one event here. The log
// assigns strictly increasing timestamps at microsecond precision (a wall
// clock that has not advanced since the previous append is bumped by 1µs),
// indexes events by correlation, order, and type, and returns snapshot
// copies from every query so callers never observe in-place mutation.
//
// The default deployment is memory-resident and bounded: once max capacity
// is reached further appends are rejected with ErrLogFull. An optional
// Archiver receives every appended event for durable storage.
package eventlog

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradecore/pkg/types"
)

// ErrLogFull is returned when a bounded log has reached capacity. Append
// failure is fatal to the order in progress; operator intervention required.
var ErrLogFull = fmt.Errorf("event log full")

// Archiver is the seam for persistent event storage. Implementations must
// preserve append order and all event fields.
type Archiver interface {
	Archive(types.Event) error
}

// Subscriber receives every appended event, after it is durably recorded.
// Used by the API layer to stream the live audit feed.
type Subscriber func(types.Event)

// Log is the in-memory event journal. One writer lock on append; queries
// take a read lock and return snapshot slices.
type Log struct {
	mu            sync.RWMutex
	events        []types.Event
	byCorrelation map[string][]int // indexes into events
	byOrder       map[string][]int
	lastTS        time.Time
	maxEvents     int // 0 = unbounded

	archive Archiver
	now     func() time.Time
	logger  *slog.Logger

	subMu sync.RWMutex
	subs  []Subscriber
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity bounds the log to n events; appends past capacity fail with
// ErrLogFull.
func WithCapacity(n int) Option {
	return func(l *Log) { l.maxEvents = n }
}

// WithArchiver attaches a persistent sink invoked on every append.
func WithArchiver(a Archiver) Option {
	return func(l *Log) { l.archive = a }
}

// WithClock overrides the wall clock source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an event log.
func New(logger *slog.Logger, opts ...Option) *Log {
	l := &Log{
		byCorrelation: make(map[string][]int),
		byOrder:       make(map[string][]int),
		now:           time.Now,
		logger:        logger.With("component", "eventlog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns the event an ID and a strictly increasing timestamp, then
// records it. Returns the assigned event ID. The append lock is held only
// for the duration of the in-memory insert and archive write, never across
// user work.
func (l *Log) Append(e types.Event) (string, error) {
	if e.Payload == nil {
		return "", fmt.Errorf("append %s: nil payload", e.Type)
	}
	if e.Type != e.Payload.Kind() {
		return "", fmt.Errorf("append %s: payload kind %s does not match", e.Type, e.Payload.Kind())
	}

	l.mu.Lock()
	if l.maxEvents > 0 && len(l.events) >= l.maxEvents {
		l.mu.Unlock()
		return "", ErrLogFull
	}

	e.EventID = uuid.NewString()
	ts := l.now().UTC().Truncate(time.Microsecond)
	if !ts.After(l.lastTS) {
		ts = l.lastTS.Add(time.Microsecond)
	}
	l.lastTS = ts
	e.Timestamp = ts

	if l.archive != nil {
		if err := l.archive.Archive(e); err != nil {
			l.mu.Unlock()
			return "", fmt.Errorf("archive event: %w", err)
		}
	}

	idx := len(l.events)
	l.events = append(l.events, e)
	l.byCorrelation[e.CorrelationID] = append(l.byCorrelation[e.CorrelationID], idx)
	if e.OrderID != "" {
		l.byOrder[e.OrderID] = append(l.byOrder[e.OrderID], idx)
	}
	l.mu.Unlock()

	l.logger.Info("event appended",
		"type", string(e.Type),
		"order_id", e.OrderID,
		"correlation_id", e.CorrelationID,
	)
	l.notify(e)
	return e.EventID, nil
}

// Subscribe registers a callback invoked after every append. Callbacks run
// outside the log's locks and must not block.
func (l *Log) Subscribe(s Subscriber) {
	l.subMu.Lock()
	l.subs = append(l.subs, s)
	l.subMu.Unlock()
}

func (l *Log) notify(e types.Event) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for _, s := range l.subs {
		s(e)
	}
}

// ByCorrelation returns the ordered event chain for a correlation ID.
func (l *Log) ByCorrelation(correlationID string) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byCorrelation[correlationID])
}

// ByOrder returns the ordered event chain for an order ID.
func (l *Log) ByOrder(orderID string) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byOrder[orderID])
}

// ByType returns events of the given type within [since, until]. Zero
// bounds are open.
func (l *Log) ByType(t types.EventType, since, until time.Time) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.Event
	for _, e := range l.events {
		if e.Type != t {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(limit int) []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *Log) collect(idxs []int) []types.Event {
	out := make([]types.Event, len(idxs))
	for i, idx := range idxs {
		out[i] = l.events[idx]
	}
	return out
}
