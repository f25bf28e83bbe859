package channel

import (
	"context"
	"sync"
)

// hub fans a single stream of messages out to any number of independent
// readers (the direct reader plus any Fork()s), broadcaster-style: each
// reader owns its own unbounded queue and sees every message published
// from the point it subscribed forward. Grounded on the paired
// byte-channel halves a MemConnection wires to each other, generalized
// from a single fixed reader to arbitrarily many.
type hub struct {
	mu     sync.Mutex
	subs   []*subscriber
	closed bool
}

func newHub() *hub {
	return &hub{}
}

func (h *hub) subscribe() *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := newSubscriber()
	if h.closed {
		s.closeSub()
		return s
	}

	h.subs = append(h.subs, s)
	return s
}

func (h *hub) publish(m Msg) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrChannelClosed
	}

	for _, s := range h.subs {
		s.push(m)
	}
	return nil
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.closed = true
	for _, s := range h.subs {
		s.closeSub()
	}
}

// unsubscribe detaches s from the hub without affecting the hub itself or
// any other subscriber; used when a Fork()ed Channel is closed on its own,
// leaving the underlying connection untouched.
func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	s.closeSub()
}

// subscriber is one reader's view of a hub: an unbounded FIFO queue plus a
// rotating notify channel, so Read can select on both new data and ctx
// cancellation without polling.
type subscriber struct {
	mu     sync.Mutex
	queue  []Msg
	notify chan struct{}
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{notify: make(chan struct{})}
}

func (s *subscriber) push(m Msg) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	old := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(old)
}

func (s *subscriber) closeSub() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	old := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(old)
}

func (s *subscriber) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed && len(s.queue) == 0
}

func (s *subscriber) read(ctx context.Context) (*Msg, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			m := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return &m, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, nil
		}

		wait := s.notify
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// memChannel is one half of an in-process Channel pair: outbound messages
// are published to the peer's hub (out), inbound messages are read from
// this side's own hub (in) via a dedicated subscriber.
type memChannel struct {
	in      *hub
	out     *hub
	sub     *subscriber
	primary bool
}

// NewMemPair returns two Channels wired directly to each other: whatever is
// Enqueued on one is Read from the other. Used by tests and by the
// cmd/relaydemo in-process mode.
func NewMemPair() (Channel, Channel) {
	hubA := newHub()
	hubB := newHub()

	a := &memChannel{in: hubA, out: hubB, sub: hubA.subscribe(), primary: true}
	b := &memChannel{in: hubB, out: hubA, sub: hubB.subscribe(), primary: true}
	return a, b
}

func (m *memChannel) Enqueue(msg Msg) error {
	return m.out.publish(msg)
}

func (m *memChannel) Read(ctx context.Context) (*Msg, error) {
	return m.sub.read(ctx)
}

// Close tears down the whole connection when called on the Channel
// returned by NewMemPair/NewStream. Called on a Fork()ed Channel, it only
// detaches that fork's own reader, leaving the connection and any other
// fork untouched.
func (m *memChannel) Close() error {
	if m.primary {
		m.out.close()
		m.in.close()
		return nil
	}

	m.in.unsubscribe(m.sub)
	return nil
}

func (m *memChannel) Drained() bool {
	return m.sub.drained()
}

// Fork subscribes a new, independent reader to this side's inbound hub, so
// the fork sees every message arriving from now on without consuming them
// from m's own reader.
func (m *memChannel) Fork() Channel {
	return &memChannel{in: m.in, out: m.out, sub: m.in.subscribe()}
}
