package client

import (
	"time"

	"github.com/pkopriv2/relay/common"
)

// closeMarker is pushed onto a client's requests queue by Close. It is a
// distinct type from *request[Req,Resp], so it can never be constructed by
// a caller going through Request — only Close can enqueue one.
type closeMarker struct{}

const defaultRetryInterval = 100 * time.Millisecond

type options struct {
	description   string
	logger        common.Logger
	retryInterval time.Duration
}

// Option configures a Serial or Pipelined client at construction time.
type Option func(*options)

// WithDescription sets the log tag used for messages this client emits.
func WithDescription(d string) Option {
	return func(o *options) { o.description = d }
}

// WithLogger overrides the default standard logger.
func WithLogger(l common.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRetryInterval overrides how long the pipelined client's transmit loop
// sleeps between enqueue attempts when the underlying Channel is momentarily
// unwritable. Defaults to 100ms.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryInterval = d }
}

func newOptions(opts []Option) options {
	o := options{
		description:   "unknown",
		logger:        common.NewStandardLogger(common.NewEmptyConfig()),
		retryInterval: defaultRetryInterval,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
