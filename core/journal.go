package core

import (
	"sync"
	"time"

	"tradevault/core/types"
)

// SequencedEvent is a journaled notification with its monotonically increasing
// sequence number. Off-chain consumers use the sequence as a resume cursor.
type SequencedEvent struct {
	Sequence  int64        `json:"sequence"`
	Timestamp int64        `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

const defaultJournalCapacity = 4096

// eventJournal retains the most recent notifications in a ring and fans new
// entries out to live subscribers. Subscribers that fall behind are dropped
// rather than blocking the operation path.
type eventJournal struct {
	mu          sync.Mutex
	seq         int64
	entries     []SequencedEvent
	capacity    int
	subscribers map[int64]chan SequencedEvent
	nextSub     int64
	nowFn       func() time.Time
}

func newEventJournal(capacity int) *eventJournal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	return &eventJournal{
		capacity:    capacity,
		subscribers: make(map[int64]chan SequencedEvent),
		nowFn:       time.Now,
	}
}

func (j *eventJournal) append(evt *types.Event) SequencedEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	entry := SequencedEvent{Sequence: j.seq, Timestamp: j.nowFn().Unix(), Event: evt}
	j.entries = append(j.entries, entry)
	if len(j.entries) > j.capacity {
		j.entries = j.entries[len(j.entries)-j.capacity:]
	}
	for id, ch := range j.subscribers {
		select {
		case ch <- entry:
		default:
			close(ch)
			delete(j.subscribers, id)
		}
	}
	return entry
}

// after returns up to limit entries with sequence strictly greater than the
// cursor.
func (j *eventJournal) after(cursor int64, limit int) []SequencedEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]SequencedEvent, 0, limit)
	for _, entry := range j.entries {
		if entry.Sequence <= cursor {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out
}

// subscribe registers a live consumer. The returned backlog holds everything
// after the cursor that is still retained; the channel carries entries
// appended afterwards. cancel must be called when the consumer goes away.
func (j *eventJournal) subscribe(cursor int64, buffer int) (<-chan SequencedEvent, func(), []SequencedEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if buffer <= 0 {
		buffer = 64
	}
	backlog := make([]SequencedEvent, 0)
	for _, entry := range j.entries {
		if entry.Sequence > cursor {
			backlog = append(backlog, entry)
		}
	}
	ch := make(chan SequencedEvent, buffer)
	id := j.nextSub
	j.nextSub++
	j.subscribers[id] = ch
	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if existing, ok := j.subscribers[id]; ok {
			close(existing)
			delete(j.subscribers, id)
		}
	}
	return ch, cancel, backlog
}
