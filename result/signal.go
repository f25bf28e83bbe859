package result

import "sync"

// Signal is a single-shot broadcast future, the "constant channel" idiom
// a controller's closed/failed channels use: Fire is idempotent and every
// observer, past or future, sees the same closed channel.
type Signal struct {
	once sync.Once
	c    chan struct{}
}

// NewSignal returns an unfired Signal.
func NewSignal() *Signal {
	return &Signal{c: make(chan struct{})}
}

// Fire closes the signal's channel. Safe to call more than once or
// concurrently; only the first call has any effect.
func (s *Signal) Fire() {
	s.once.Do(func() {
		close(s.c)
	})
}

// C returns the channel that closes when Fire is called.
func (s *Signal) C() <-chan struct{} {
	return s.c
}

// Fired reports whether Fire has already been called, without blocking.
func (s *Signal) Fired() bool {
	select {
	case <-s.c:
		return true
	default:
		return false
	}
}
