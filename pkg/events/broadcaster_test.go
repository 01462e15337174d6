package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	assert.Equal(t, 2, b.Count())

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	assert.Equal(t, 1, b.Count())

	_, open := <-ch1
	assert.False(t, open, "channel is closed on unsubscribe")

	b.Unsubscribe(ch2)
	assert.Zero(t, b.Count())
}

func TestBroadcaster_Publish(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(Event{Type: FileCompleted, Provider: "shop", File: "f1"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, FileCompleted, got.Type)
			assert.Equal(t, "f1", got.File)
			assert.False(t, got.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBroadcaster_DropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Event{Type: FileProgress, Bytes: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(Event{Type: FileEnqueued})
			}
		}()
	}
	wg.Wait()
	require.Len(t, ch, 80)
}

func TestBroadcaster_Nil(t *testing.T) {
	var b *Broadcaster
	assert.NotPanics(t, func() { b.Publish(Event{Type: SyncFinished}) })
}
