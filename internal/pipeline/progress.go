package pipeline

import (
	"sync"
	"time"

	"github.com/tradelens/screener/internal/contracts"
)

// Broadcaster fans progress events out to subscribers (websocket clients,
// CLI progress display). Publishing never blocks: slow subscribers drop
// events instead of stalling the pipeline.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan contracts.ProgressEvent]struct{}
}

// NewBroadcaster creates a new progress broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan contracts.ProgressEvent]struct{}),
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called when the subscriber is done.
func (b *Broadcaster) Subscribe() (<-chan contracts.ProgressEvent, func()) {
	ch := make(chan contracts.ProgressEvent, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends an event to all subscribers
func (b *Broadcaster) Publish(date time.Time, stage string, done, total int) {
	event := contracts.ProgressEvent{
		Date:      date,
		Stage:     stage,
		Done:      done,
		Total:     total,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
