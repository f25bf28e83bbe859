package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignal_Fire(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.Fired())

	s.Fire()
	assert.True(t, s.Fired())

	select {
	case <-s.C():
	default:
		t.Fatal("expected C() to be closed")
	}
}

func TestSignal_FireTwice(t *testing.T) {
	s := NewSignal()
	s.Fire()
	s.Fire()
	assert.True(t, s.Fired())
}

func TestSignal_MultipleObservers(t *testing.T) {
	s := NewSignal()

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-s.C()
			done <- struct{}{}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	s.Fire()

	<-done
	<-done
}
