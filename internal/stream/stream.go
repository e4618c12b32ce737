// Package stream fans events out to subscribers (session observers, SSE clients).
package stream

import (
	"context"
	"sync"
)

const defaultBuffer = 16

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
}

// Stream fan-outs events of type T to all active subscribers.
type Stream[T any] struct {
	mu     sync.RWMutex
	subs   map[int]subscriber[T]
	next   int
	buffer int
}

// New initialises an empty stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{
		subs:   make(map[int]subscriber[T]),
		buffer: defaultBuffer,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	sub := subscriber[T]{ch: make(chan T, s.buffer), done: make(chan struct{})}

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(sub.done)
		s.mu.Lock()
		delete(s.subs, id)
		close(sub.ch)
		s.mu.Unlock()
	}()

	return sub.ch
}

// Publish fan-outs the event to all subscribers and reports how many received it.
// Slow subscribers with a full buffer miss the event.
func (s *Stream[T]) Publish(evt T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delivered := 0
	for _, sub := range s.subs {
		select {
		case sub.ch <- evt:
			delivered++
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	return delivered
}

// PublishWait delivers the event to every live subscriber, waiting for buffer space.
// It gives up on the remaining subscribers when ctx ends.
func (s *Stream[T]) PublishWait(ctx context.Context, evt T) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		select {
		case sub.ch <- evt:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (s *Stream[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
