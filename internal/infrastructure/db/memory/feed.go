// Package memory holds process-local implementations of the store ports. They
// back the default "memory" store mode, the CLI seed/report commands and
// tests that need real watch semantics.
package memory

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// feed fans changes out to subscribers. publish is called with the owning
// store's write lock held, so every subscriber sees changes in write order.
type feed[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscriber[T]
}

type subscriber[T any] struct {
	ch  chan T
	ctx context.Context
}

func (f *feed[T]) subscribe(ctx context.Context) <-chan T {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]*subscriber[T])
	}
	id := f.next
	f.next++
	sub := &subscriber[T]{ch: make(chan T, subscriberBuffer), ctx: ctx}
	f.subs[id] = sub

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch
}

// publish delivers v to every live subscriber. A full subscriber buffer
// applies back-pressure to the writer instead of dropping the change.
func (f *feed[T]) publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub.ch <- v:
		case <-sub.ctx.Done():
		}
	}
}
