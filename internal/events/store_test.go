package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intEqual(a, b int) bool { return a == b }

func TestStore_PublishOnlyOnChange(t *testing.T) {
	s := NewStore(intEqual, 4)

	_, ok := s.Read()
	assert.False(t, ok)

	assert.True(t, s.Publish(1))
	assert.False(t, s.Publish(1), "same value must not be republished")
	assert.True(t, s.Publish(2))

	v, ok := s.Read()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStore_SubscribeReceivesCurrentAndChanges(t *testing.T) {
	s := NewStore(intEqual, 4)
	s.Publish(7)

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	assert.Equal(t, 7, receive(t, ch))

	s.Publish(7)
	s.Publish(8)
	assert.Equal(t, 8, receive(t, ch))

	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestStore_SlowConsumerKeepsLatest(t *testing.T) {
	s := NewStore[int](nil, 1)
	ch := s.Subscribe()

	for i := 0; i < 10; i++ {
		s.Publish(i)
	}
	assert.Equal(t, 9, receive(t, ch))
	assert.Len(t, ch, 0)

	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// second unsubscribe is a no-op
	s.Unsubscribe(ch)
}

func TestStore_SlowConsumerSeesFinalChange(t *testing.T) {
	s := NewStore(intEqual, 2)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.Publish(1)
	s.Publish(2)
	// buffer is full; the last publish must still reach the subscriber
	s.Publish(0)

	assert.Equal(t, 2, receive(t, ch))
	assert.Equal(t, 0, receive(t, ch))
}

func TestStore_UnsubscribeCloses(t *testing.T) {
	s := NewStore[int](nil, 1)
	ch := s.Subscribe()

	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// second unsubscribe is a no-op
	s.Unsubscribe(ch)
}

func receive(t *testing.T, ch chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		return 0
	}
}
