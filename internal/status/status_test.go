package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_StartsIdle(t *testing.T) {
	r := NewReporter(nil)
	assert.Equal(t, StateIdle, r.Current().State)
	assert.False(t, r.Current().Err)
}

func TestReporter_SetUpdatesCurrent(t *testing.T) {
	r := NewReporter(nil)
	r.Set(StateWatching, "Monitoring... waiting for silence.")

	cur := r.Current()
	assert.Equal(t, StateWatching, cur.State)
	assert.False(t, cur.Err)
}

func TestReporter_SetErrorKeepsState(t *testing.T) {
	r := NewReporter(nil)
	r.Set(StateWatching, "watching")
	r.SetError("No valid audio file selected!")

	cur := r.Current()
	assert.Equal(t, StateWatching, cur.State)
	assert.True(t, cur.Err)
}

func TestReporter_SubscribeDeliversCurrentThenUpdates(t *testing.T) {
	r := NewReporter(nil)
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	first := <-ch
	assert.Equal(t, StateIdle, first.State)

	r.Set(StatePlaying, "Playing ambient sound...")

	select {
	case s := <-ch:
		assert.Equal(t, StatePlaying, s.State)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status update")
	}
}

func TestReporter_DuplicateUpdatesSuppressed(t *testing.T) {
	r := NewReporter(nil)
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)
	<-ch // drain initial snapshot

	r.Set(StateWatching, "watching")
	r.Set(StateWatching, "watching")

	<-ch
	select {
	case s := <-ch:
		t.Fatalf("unexpected duplicate update: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReporter_SlowSubscriberDoesNotBlock(t *testing.T) {
	r := NewReporter(nil)
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	// Fill the buffer well past capacity; Set must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Set(StateCountdown, time.Now().String())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
	require.NotEmpty(t, ch)
}
