package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkopriv2/relay/backoff"
	"github.com/pkopriv2/relay/channel"
)

func TestSupervisor_Get_ReturnsConnection(t *testing.T) {
	local, remote := channel.NewMemPair()
	defer remote.Close()

	sup := New(func(ctx context.Context) (channel.Channel, error) {
		return local, nil
	})
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := sup.Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, local, ch)
}

func TestSupervisor_Shutdown_Idempotent(t *testing.T) {
	sup := New(func(ctx context.Context) (channel.Channel, error) {
		a, _ := channel.NewMemPair()
		return a, nil
	})

	sup.Shutdown()
	sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := sup.Get(ctx)
	assert.Equal(t, ErrDeactivated, errors.Cause(err))
}

func TestSupervisor_RetriesOnGeneratorFailure(t *testing.T) {
	var attempts atomic.Int32

	local, remote := channel.NewMemPair()
	defer remote.Close()

	sup := New(func(ctx context.Context) (channel.Channel, error) {
		n := attempts.Add(1)
		if n < 3 {
			return nil, errors.New("dial failed")
		}
		return local, nil
	}, WithBackoff(backoff.New(time.Millisecond, 10*time.Millisecond)))
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := sup.Get(ctx)
	assert.Nil(t, err)
	assert.Equal(t, local, ch)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestSupervisor_ReconnectsOnLoss(t *testing.T) {
	var mu sync.Mutex
	var generated []channel.Channel

	sup := New(func(ctx context.Context) (channel.Channel, error) {
		a, b := channel.NewMemPair()
		mu.Lock()
		generated = append(generated, b)
		mu.Unlock()
		return a, nil
	}, WithBackoff(backoff.New(time.Millisecond, 5*time.Millisecond)))
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sup.Get(ctx)
	require.Nil(t, err)

	mu.Lock()
	remote := generated[0]
	mu.Unlock()
	remote.Close()

	require.Eventually(t, func() bool {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel2()
		next, err := sup.Get(ctx2)
		return err == nil && next != first
	}, time.Second, 10*time.Millisecond)
}

func TestSupervisor_Get_BlocksOnLossRatherThanReturningStaleChannel(t *testing.T) {
	var attempts atomic.Int32
	var mu sync.Mutex
	var generated []channel.Channel

	sup := New(func(ctx context.Context) (channel.Channel, error) {
		if attempts.Add(1) > 1 {
			// the reconnect attempt following the loss is held up, so a
			// Get racing it observes the gap between loss and reconnect.
			time.Sleep(200 * time.Millisecond)
		}
		a, b := channel.NewMemPair()
		mu.Lock()
		generated = append(generated, b)
		mu.Unlock()
		return a, nil
	})
	defer sup.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, err := sup.Get(ctx)
	require.Nil(t, err)

	mu.Lock()
	remote := generated[0]
	mu.Unlock()
	remote.Close()

	// give the supervisor's own loss detector a moment to observe the
	// close before racing it with Get.
	time.Sleep(20 * time.Millisecond)

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	_, err = sup.Get(shortCtx)
	assert.Equal(t, context.DeadlineExceeded, err, "Get must block past a lost connection instead of handing back the stale, dead channel")

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	next, err := sup.Get(ctx2)
	require.Nil(t, err)
	assert.NotEqual(t, first, next)
}

func TestSupervisor_OnConnect(t *testing.T) {
	local, remote := channel.NewMemPair()
	defer remote.Close()

	var got channel.Channel
	done := make(chan struct{})

	sup := New(func(ctx context.Context) (channel.Channel, error) {
		return local, nil
	}, WithOnConnect(func(ch channel.Channel) {
		got = ch
		close(done)
	}))
	defer sup.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("on-connect was never invoked")
	}
	assert.Equal(t, local, got)
}
