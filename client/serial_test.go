package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkopriv2/relay/backoff"
	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/supervisor"
)

// echoServer reads one request off ch and writes it straight back,
// looping until ch drains.
func echoServer(ch channel.Channel) {
	go func() {
		for {
			msg, err := ch.Read(context.Background())
			if err != nil || msg == nil {
				return
			}
			if ch.Enqueue(*msg) != nil {
				return
			}
		}
	}()
}

func TestSerial_RequestResponse_OrderPreserved(t *testing.T) {
	local, remote := channel.NewMemPair()
	echoServer(remote)

	sup := supervisor.New(func(ctx context.Context) (channel.Channel, error) {
		return local, nil
	})
	defer sup.Shutdown()

	c := NewSerial[string, string](sup, echoCodec{})
	defer c.Close()

	ctx := context.Background()
	h1 := c.Request(ctx, "one", time.Second)
	h2 := c.Request(ctx, "two", time.Second)
	h3 := c.Request(ctx, "three", time.Second)

	v1, err1 := h1.Wait(ctx)
	v2, err2 := h2.Wait(ctx)
	v3, err3 := h3.Wait(ctx)

	require.Nil(t, err1)
	require.Nil(t, err2)
	require.Nil(t, err3)
	assert.Equal(t, "one", v1)
	assert.Equal(t, "two", v2)
	assert.Equal(t, "three", v3)
}

func TestSerial_Timeout(t *testing.T) {
	local, _ := channel.NewMemPair()
	// no server reading local's peer, so no reply ever arrives.

	sup := supervisor.New(func(ctx context.Context) (channel.Channel, error) {
		return local, nil
	})
	defer sup.Shutdown()

	c := NewSerial[string, string](sup, echoCodec{})
	defer c.Close()

	ctx := context.Background()
	h := c.Request(ctx, "hello", 20*time.Millisecond)

	_, err := h.Wait(context.Background())
	assert.Equal(t, ErrTimeout, err)
}

func TestSerial_TimeoutDuringSustainedOutage_DoesNotStallConsumer(t *testing.T) {
	sup := supervisor.New(func(ctx context.Context) (channel.Channel, error) {
		return nil, assert.AnError
	}, supervisor.WithBackoff(backoff.New(10*time.Second, 10*time.Second)))
	defer sup.Shutdown()

	c := NewSerial[string, string](sup, echoCodec{})
	defer c.Close()

	h := c.Request(context.Background(), "hello", 20*time.Millisecond)
	require.Eventually(t, h.Terminal, 500*time.Millisecond, 5*time.Millisecond)
	_, err := h.Get()
	assert.Equal(t, ErrTimeout, err)

	// a second request submitted right after must not be stuck behind the
	// first one's sup.Get still waiting out a 10s backoff window.
	h2 := c.Request(context.Background(), "world", 20*time.Millisecond)
	require.Eventually(t, h2.Terminal, 500*time.Millisecond, 5*time.Millisecond)
	_, err2 := h2.Get()
	assert.Equal(t, ErrTimeout, err2)
}

func TestSerial_RetriesAcrossReconnect(t *testing.T) {
	local, remote := channel.NewMemPair()
	echoServer(remote)

	sup := supervisor.New(func(ctx context.Context) (channel.Channel, error) {
		return local, nil
	}, supervisor.WithBackoff(backoff.New(time.Millisecond, 5*time.Millisecond)))
	defer sup.Shutdown()

	c := NewSerial[string, string](sup, echoCodec{})
	defer c.Close()

	remote.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := c.Request(ctx, "hi", -1)
	_, err := h.Wait(ctx)
	assert.Error(t, err)
}

func TestSerial_CloseIsIdempotentAndDeactivatesFutureRequests(t *testing.T) {
	local, remote := channel.NewMemPair()
	echoServer(remote)

	sup := supervisor.New(func(ctx context.Context) (channel.Channel, error) {
		return local, nil
	})

	c := NewSerial[string, string](sup, echoCodec{})
	require.Nil(t, c.Close())
	require.Nil(t, c.Close())

	time.Sleep(10 * time.Millisecond)

	h := c.Request(context.Background(), "late", time.Second)
	_, err := h.Wait(context.Background())
	assert.Equal(t, ErrClosed, err)
}
