package observer

import (
	"context"
	"sync"
	"time"

	"batchcursor/internal/state"
)

// Event describes the outcome of one driver invocation.
type Event struct {
	Collection    string        `json:"collection"`
	Lane          string        `json:"lane,omitempty"`
	Offset        int           `json:"offset"`
	Total         int           `json:"total"`
	Status        state.Status  `json:"status"`
	ItemID        string        `json:"item_id,omitempty"`
	BatchComplete bool          `json:"batch_complete"`
	Skipped       []string      `json:"skipped,omitempty"`
	Progress      string        `json:"progress"`
	Error         string        `json:"error,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	InvocationID  string        `json:"invocation_id"`
	Time          time.Time     `json:"time"`
}

// Observer receives events. Notify must not block for long; the driver calls
// observers synchronously after releasing the collection lock.
type Observer interface {
	Notify(ctx context.Context, evt Event)
}

// Func adapts a function into an Observer.
type Func func(ctx context.Context, evt Event)

// Notify implements Observer.
func (f Func) Notify(ctx context.Context, evt Event) { f(ctx, evt) }

// Broadcaster delivers each event to every subscribed observer in
// subscription order.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	observers []subscription
}

type subscription struct {
	id       int
	observer Observer
}

// NewBroadcaster returns a broadcaster with the given initial observers.
func NewBroadcaster(observers ...Observer) *Broadcaster {
	b := &Broadcaster{}
	for _, o := range observers {
		b.Subscribe(o)
	}
	return b
}

// Subscribe registers o and returns a function that removes it.
func (b *Broadcaster) Subscribe(o Observer) func() {
	if o == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, subscription{id: id, observer: o})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.observers {
				if sub.id == id {
					b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Len reports the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// Notify implements Observer.
func (b *Broadcaster) Notify(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.observers...)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.observer.Notify(ctx, evt)
	}
}
