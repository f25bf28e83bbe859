package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/result"
)

func TestPipelined_RepliesInRequestOrderDespiteOutOfOrderCompletion(t *testing.T) {
	local, remote := channel.NewMemPair()

	handler := func(ctx context.Context, slot *result.Handle[string], req string) {
		// "slow" requests finish later, but replies must still come back
		// in the order the requests arrived.
		if req == "slow" {
			go func() {
				time.Sleep(20 * time.Millisecond)
				slot.Complete(strings.ToUpper(req))
			}()
			return
		}
		slot.Complete(strings.ToUpper(req))
	}

	srv := NewPipelined[string, string](remote, handler, echoCodec{}, WithWorkers(4))
	defer srv.Close()

	require.Nil(t, local.Enqueue(channel.Msg{Value: "slow"}))
	require.Nil(t, local.Enqueue(channel.Msg{Value: "fast"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg1, err := local.Read(ctx)
	require.Nil(t, err)
	require.NotNil(t, msg1)
	assert.Equal(t, "SLOW", msg1.Value)

	msg2, err := local.Read(ctx)
	require.Nil(t, err)
	require.NotNil(t, msg2)
	assert.Equal(t, "FAST", msg2.Value)
}

func TestPipelined_CloseDrainsChannel(t *testing.T) {
	local, remote := channel.NewMemPair()

	handler := func(ctx context.Context, slot *result.Handle[string], req string) {
		slot.Complete(req)
	}

	srv := NewPipelined[string, string](remote, handler, echoCodec{})
	require.Nil(t, srv.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := local.Read(ctx)
	assert.Nil(t, err)
	assert.Nil(t, msg)
}
