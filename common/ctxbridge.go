package common

import "context"

// ContextFor derives a context.Context that cancels when ctrl closes,
// bridging the Control cancellation tree into the stdlib context used for
// per-call deadlines. Grounded on control.go's Closed() channel — the only
// addition is the background goroutine required to translate a close into
// a context cancellation.
func ContextFor(ctrl Control) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ctrl.Closed()
		cancel()
	}()
	return ctx
}
