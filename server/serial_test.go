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

func upperHandler(ctx context.Context, slot *result.Handle[string], req string) {
	slot.Complete(strings.ToUpper(req))
}

func TestSerial_HandlesRequestsInOrder(t *testing.T) {
	local, remote := channel.NewMemPair()

	NewSerial[string, string](remote, upperHandler, echoCodec{})
	defer remote.Close()

	ctx := context.Background()
	for _, in := range []string{"one", "two", "three"} {
		require.Nil(t, local.Enqueue(channel.Msg{Value: in}))
		msg, err := local.Read(ctx)
		require.Nil(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, strings.ToUpper(in), msg.Value)
	}
}

func TestSerial_CloseDrainsChannel(t *testing.T) {
	local, remote := channel.NewMemPair()
	srv := NewSerial[string, string](remote, upperHandler, echoCodec{})

	require.Nil(t, srv.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := local.Read(ctx)
	assert.Nil(t, err)
	assert.Nil(t, msg)
}
