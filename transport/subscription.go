package transport

import (
	"sync"

	"github.com/nats-io/nats.go"
)

// Subscription is the handle returned by Client.Subscribe.
type Subscription struct {
	id          uint64
	destination string
	client      *Client
	conn        *nats.Conn
	gen         uint64

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

// Destination returns the subscribed destination.
func (s *Subscription) Destination() string {
	return s.destination
}

// Alive reports whether the subscription still delivers frames. It turns false
// after Unsubscribe and after the connection it was made on is lost.
func (s *Subscription) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.sub == nil || !s.sub.IsValid() {
		return false
	}

	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	return s.client.conn == s.conn && s.client.gen == s.gen
}

// Unsubscribe stops delivery. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.mu.Unlock()

	s.client.subs.Delete(s.id)

	if sub == nil || !sub.IsValid() {
		return nil
	}

	return sub.Unsubscribe()
}
