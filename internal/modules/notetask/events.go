package notetask

import (
	"sync"
	"time"

	"github.com/studycompanion/core/internal/pkg/taskstore"
)

// Event is one progress frame of a generation task. Subscribers see
// events in publication order, culminating in exactly one terminal event.
type Event struct {
	TaskID         string           `json:"task_id"`
	SessionID      string           `json:"session_id"`
	Status         taskstore.Status `json:"status"`
	Progress       int              `json:"progress"`
	CurrentSection string           `json:"current_section,omitempty"`
	Message        string           `json:"message,omitempty"`
	Error          string           `json:"error,omitempty"`
	NoteDocID      string           `json:"note_doc_id,omitempty"`
	Terminal       bool             `json:"terminal"`
	At             time.Time        `json:"at"`
}

// broadcaster fans one task's events out to any number of subscribers.
// Every published event is kept for replay, so a late subscriber gets
// the full history including the terminal event. Subscriber channels
// are sized for the whole event sequence up front, which keeps publish
// non-blocking.
type broadcaster struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	subs     map[int]chan Event
	nextID   int
	closed   bool
}

// newBroadcaster sizes subscriber channels for expectedEvents frames.
func newBroadcaster(expectedEvents int) *broadcaster {
	if expectedEvents < 8 {
		expectedEvents = 8
	}
	return &broadcaster{
		capacity: expectedEvents,
		subs:     make(map[int]chan Event),
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.events = append(b.events, ev)
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Channel sized for the full sequence; a full channel means
			// a subscriber missed frames it can re-read via replay.
		}
	}

	if ev.Terminal {
		b.closed = true
		for id, ch := range b.subs {
			close(ch)
			delete(b.subs, id)
		}
	}
}

// subscribe returns a channel that first replays every past event and
// then carries live ones. For a finished task the channel is closed
// after replay. The returned func detaches the subscriber.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, len(b.events)+b.capacity)
	for _, ev := range b.events {
		ch <- ev
	}

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}
