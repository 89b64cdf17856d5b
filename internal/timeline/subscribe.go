package timeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Subscription is one subscriber's ordered diff stream. Diffs are buffered
// without bound on the writer side; the reader drains them with Next.
type Subscription struct {
	id string

	mu     sync.Mutex
	buf    []Diff
	closed bool
	notify chan struct{}

	detach func()
}

func newSubscription(detach func(id string)) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		notify: make(chan struct{}, 1),
	}
	sub.detach = func() { detach(sub.id) }
	return sub
}

// push appends a diff to the buffer. Called by the writer inside the
// store's critical section; never blocks.
func (s *Subscription) push(d Diff) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, d)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until the next diff is available, the context is cancelled,
// or the subscription is closed. Diffs are delivered in emission order
// with no gaps or duplicates.
func (s *Subscription) Next(ctx context.Context) (Diff, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			d := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return d, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Diff{}, ErrSubscriptionClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Diff{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// TryNext returns the next buffered diff without blocking.
func (s *Subscription) TryNext() (Diff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return Diff{}, false
	}
	d := s.buf[0]
	s.buf = s.buf[1:]
	return d, true
}

// Pending returns the number of buffered, undelivered diffs.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Close detaches the subscription, releases its buffer and wakes any
// blocked Next call. Other subscribers and the writer are unaffected.
func (s *Subscription) Close() {
	s.detach()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.buf = nil
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
