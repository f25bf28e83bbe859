// Package backoff implements the exponential reconnect delay policy used
// by the supervisor, grounded on the doubling-timeout idiom in
// message/client/tunnel/sender.go ("exponential backoff: timeoutCur *= 2").
package backoff

import (
	"time"

	"github.com/pkopriv2/relay/common"
)

const (
	// DefaultBase is the first retry delay used by the zero value of Policy.
	DefaultBase = 500 * time.Millisecond
	// DefaultCap is the backoff ceiling used by the zero value of Policy.
	DefaultCap = 64 * time.Second
)

// Policy computes the next reconnect delay given the previous one. Base is
// the first non-zero delay; each subsequent call doubles the previous
// delay, capped at Cap. The zero value is ready to use, defaulting to
// DefaultBase/DefaultCap (500ms doubling to 64s).
type Policy struct {
	base time.Duration
	cap  time.Duration
}

// New returns a Policy that starts at base and doubles up to cap.
func New(base, cap time.Duration) Policy {
	return Policy{base: base, cap: cap}
}

func (p Policy) resolved() (base, cap time.Duration) {
	base, cap = p.base, p.cap
	if base <= 0 {
		base = DefaultBase
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return
}

// NewFromConfig reads the base/cap bounds from c under the given keys,
// matching the bourne.msg.*-style config-key convention the rest of this
// module's tunables follow.
func NewFromConfig(c common.Config, baseKey, capKey string, defaultBase, defaultCap time.Duration) Policy {
	return New(
		c.OptionalDuration(baseKey, defaultBase),
		c.OptionalDuration(capKey, defaultCap),
	)
}

// Next returns the delay to wait before the attempt following one that
// waited prev. Passing 0 returns Base, the first retry delay; it is the
// caller's responsibility to use a delay of 0 for the very first attempt
// (no wait at all) and begin backing off only once a connection attempt
// has actually failed.
func (p Policy) Next(prev time.Duration) time.Duration {
	base, cap := p.resolved()
	if prev <= 0 {
		return base
	}

	next := prev * 2
	if next <= 0 {
		return cap
	}
	return time.Duration(common.Min(int(cap), int(next)))
}

// Reset returns the zero delay, the value Next should be called with for
// the very first connection attempt (no wait at all).
func (p Policy) Reset() time.Duration {
	return 0
}

// Cap returns the resolved ceiling delay.
func (p Policy) Cap() time.Duration {
	_, cap := p.resolved()
	return cap
}
