package transcript

import (
	"errors"
	"sync"
)

// ErrStopped is returned when subscribing to a stopped broadcaster.
var ErrStopped = errors.New("broadcaster is stopped")

// Broadcaster fans every published value out to all subscribers. Slow
// subscribers lose their oldest pending value instead of blocking publishers.
type Broadcaster[T any] struct {
	messages    chan T
	mu          sync.Mutex
	subscribers map[chan T]struct{}
	stopped     bool
	done        chan struct{}
}

// RunNewBroadcaster starts the fan-out goroutine and returns the broadcaster.
func RunNewBroadcaster[T any]() *Broadcaster[T] {
	b := &Broadcaster[T]{
		messages:    make(chan T, 1),
		subscribers: make(map[chan T]struct{}),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster[T]) run() {
	defer close(b.done)
	for msg := range b.messages {
		// offer never blocks, so holding the lock here cannot stall Subscribe.
		b.mu.Lock()
		for s := range b.subscribers {
			offer(s, msg)
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	for s := range b.subscribers {
		close(s)
	}
	b.subscribers = nil
	b.mu.Unlock()
	logger.Trace("broadcaster stopped")
}

// offer is a non-blocking send that evicts the oldest value when ch is full.
func offer[T any](ch chan T, msg T) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Stop closes every subscriber channel once pending values are delivered.
// Calling Stop more than once is safe.
func (b *Broadcaster[T]) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	close(b.messages)
	<-b.done
}

// Subscribe registers a new subscriber with a one element buffer.
func (b *Broadcaster[T]) Subscribe() (chan T, error) {
	ch := make(chan T, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, ErrStopped
	}
	b.subscribers[ch] = struct{}{}
	return ch, nil
}

// Publish queues msg for delivery. Publishing after Stop is a no-op.
func (b *Broadcaster[T]) Publish(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	offer(b.messages, msg)
}
