package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemPair_EnqueueRead(t *testing.T) {
	a, b := NewMemPair()
	defer a.Close()
	defer b.Close()

	assert.Nil(t, a.Enqueue(Msg{Value: "hello"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := b.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "hello", msg.Value)
}

func TestMemPair_Bidirectional(t *testing.T) {
	a, b := NewMemPair()
	defer a.Close()
	defer b.Close()

	assert.Nil(t, a.Enqueue(Msg{Value: 1}))
	assert.Nil(t, b.Enqueue(Msg{Value: 2}))

	ctx := context.Background()
	msgB, err := b.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, msgB.Value)

	msgA, err := a.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 2, msgA.Value)
}

func TestMemPair_CloseDrains(t *testing.T) {
	a, b := NewMemPair()
	defer a.Close()

	assert.Nil(t, a.Enqueue(Msg{Value: "last"}))
	assert.Nil(t, a.Close())

	ctx := context.Background()
	msg, err := b.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "last", msg.Value)

	msg, err = b.Read(ctx)
	assert.Nil(t, err)
	assert.Nil(t, msg)
	assert.True(t, b.Drained())
}

func TestMemPair_EnqueueAfterClose(t *testing.T) {
	a, b := NewMemPair()
	a.Close()

	err := b.Enqueue(Msg{Value: "too late"})
	assert.Equal(t, ErrChannelClosed, err)
}

func TestMemChannel_ReadRespectsContext(t *testing.T) {
	a, b := NewMemPair()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Read(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestMemChannel_Fork_IndependentReader(t *testing.T) {
	a, b := NewMemPair()
	defer a.Close()
	defer b.Close()

	fork := b.Fork()
	defer fork.Close()

	assert.Nil(t, a.Enqueue(Msg{Value: "forked"}))

	ctx := context.Background()
	msg, err := fork.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "forked", msg.Value)

	// the original reader should still see the message independently.
	msg, err = b.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "forked", msg.Value)
}

func TestMemChannel_ForkClose_DoesNotCloseParent(t *testing.T) {
	a, b := NewMemPair()
	defer a.Close()
	defer b.Close()

	fork := b.Fork()
	assert.Nil(t, fork.Close())

	assert.Nil(t, a.Enqueue(Msg{Value: "still alive"}))

	ctx := context.Background()
	msg, err := b.Read(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "still alive", msg.Value)
}
