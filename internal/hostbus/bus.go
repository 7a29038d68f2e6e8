// Package hostbus models the host runtime's subscribable event stream.
package hostbus

import (
	"sync"

	"github.com/ppiankov/agentlens/internal/model"
)

// Handler receives one source event at a time.
type Handler = func(model.SourceEvent)

// Source is a subscribable stream of source events. The returned
// function removes the subscription and may be called more than once.
type Source interface {
	Subscribe(Handler) (unsubscribe func())
}

// Bus is an in-memory Source. Publish calls every handler synchronously on
// the publisher's goroutine, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	order    []uint64
	next     uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

// Subscribe registers h until the returned function is called.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev model.SourceEvent) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		hs = append(hs, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
