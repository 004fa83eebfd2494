// Package services holds the client's cross-cutting state: who is signed
// in, whether the API is reachable and the toast queue. Each service is
// constructed once in main and passed to the parts that need it; observers
// receive changes on channels.
package services

import "sync"

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 16

// broadcaster fans values out to subscriber channels. A subscriber whose
// buffer is full misses the value rather than blocking the publisher.
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]chan T)}
}

// subscribe returns a receive channel and a function that closes it.
func (b *broadcaster[T]) subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, defaultBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// publish returns the number of subscribers that received v.
func (b *broadcaster[T]) publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}

// close closes every subscriber channel; later subscribers get a closed channel.
func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
