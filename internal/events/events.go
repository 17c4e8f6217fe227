package events

import (
	"context"
	"sync"
	"time"
)

const (
	CollectionTransactions = "transactions"
	CollectionSummaries    = "daily_summaries"
	CollectionExpenses     = "expenses"
	CollectionStaff        = "staff"
	CollectionAppointments = "appointments"
	CollectionInventory    = "inventory"
)

// Event tells listeners that a collection changed. Date is the YYYY-MM-DD
// day the change belongs to, empty when it is not tied to one day.
type Event struct {
	Collection string    `json:"collection"`
	Action     string    `json:"action"`
	Date       string    `json:"date,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	At         time.Time `json:"at"`
}

// Bus fans change events out to subscribers. Delivery is best effort: a
// subscriber that falls behind misses events rather than blocking
// publishers.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of events and a function that stops the
	// subscription and closes the channel.
	Subscribe(ctx context.Context) (<-chan Event, func())
	Close() error
}

const subscriberBuffer = 32

// LocalBus delivers events within one process.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]chan Event)}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	b.mu.Lock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
