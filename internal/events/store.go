// Package events holds owned caches that pollers write into and consumers subscribe to.
package events

import (
	"sync"
)

const defaultBuffer = 64

// Store holds the latest value of T and fans changes out to subscribers via buffered channels.
// A subscriber that falls behind loses its oldest buffered values, never the latest one.
// Publish only notifies when the value differs from the held one.
type Store[T any] struct {
	mu     sync.RWMutex
	value  T
	set    bool
	equal  func(a, b T) bool
	subs   map[chan T]struct{}
	buffer int
}

// NewStore creates a store comparing values with equal. A nil equal treats every publish as a change.
func NewStore[T any](equal func(a, b T) bool, buffer int) *Store[T] {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Store[T]{
		equal:  equal,
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

// Read returns the held value and whether anything was published yet.
func (s *Store[T]) Read() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Publish replaces the held value and notifies subscribers if it changed.
// Reports whether the value changed.
func (s *Store[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set && s.equal != nil && s.equal(s.value, v) {
		return false
	}
	s.value = v
	s.set = true

	for ch := range s.subs {
		deliverLatest(ch, v)
	}
	return true
}

// deliverLatest sends v without blocking. A full buffer loses its oldest value so
// a slow subscriber always ends on the latest one.
func deliverLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel receiving every change until Unsubscribe is called.
// The current value, if any, is delivered first.
func (s *Store[T]) Subscribe() chan T {
	ch := make(chan T, s.buffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	if s.set {
		ch <- s.value
	}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (s *Store[T]) Unsubscribe(ch chan T) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}
