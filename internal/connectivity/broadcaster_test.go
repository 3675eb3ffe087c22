package connectivity

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := b.Subscribe(ctx)
	c := b.Subscribe(ctx)

	b.Publish(StateChange{IsOnline: true})

	assert.Equal(t, StateChange{IsOnline: true}, <-a)
	assert.Equal(t, StateChange{IsOnline: true}, <-c)
	assert.Equal(t, 2, b.Subscribers())
}

func TestBroadcaster_SlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer*4; i++ {
			b.Publish(StateChange{IsOnline: i%2 == 0})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, defaultBuffer)
}

func TestBroadcaster_ContextCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(context.Background())

	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := b.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)

	assert.NotPanics(t, func() { b.Publish(StateChange{IsOnline: true}) })
}

func TestBroadcaster_UncancelledSubscribersHoldNoGoroutines(t *testing.T) {
	b := NewBroadcaster()
	before := runtime.NumGoroutine()

	chans := make([]<-chan StateChange, 0, 100)
	for i := 0; i < 100; i++ {
		chans = append(chans, b.Subscribe(context.Background()))
	}
	assert.Equal(t, 100, b.Subscribers())
	assert.Less(t, runtime.NumGoroutine(), before+10)

	b.Close()
	assert.Zero(t, b.Subscribers())
	for _, ch := range chans {
		_, ok := <-ch
		assert.False(t, ok)
	}
}

func TestBroadcaster_SubscribeWithDoneContext(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := b.Subscribe(ctx)
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed for a done context")
	}
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
