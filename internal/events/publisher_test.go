package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTaskCompleted)
	bus.Publish(New(TopicTaskCompleted, "T-1", nil))

	select {
	case ev := <-ch:
		require.Equal(t, "T-1", ev.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryBusWildcardReceivesEverything(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	all := bus.Subscribe(TopicAll)
	bus.Publish(New(TopicTaskFailed, "T-2", nil))

	select {
	case ev := <-all:
		require.Equal(t, TopicTaskFailed, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber did not receive event")
	}
}

func TestMemoryBusNonBlockingOnFullBuffer(t *testing.T) {
	bus := NewMemoryBus(WithBufferSize(1))
	defer bus.Close()

	ch := bus.Subscribe(TopicTaskCompleted)
	bus.Publish(New(TopicTaskCompleted, "T-1", nil))
	bus.Publish(New(TopicTaskCompleted, "T-2", nil)) // dropped, buffer full

	<-ch
	select {
	case <-ch:
		t.Fatal("expected second event to be dropped")
	default:
	}
}

func TestMemoryBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTaskCompleted)
	bus.Unsubscribe(TopicTaskCompleted, ch)

	_, ok := <-ch
	require.False(t, ok)
	require.Equal(t, 0, bus.SubscriberCount(TopicTaskCompleted))
}

func TestNopBus(t *testing.T) {
	var bus NopBus
	bus.Publish(New(TopicTaskCompleted, "x", nil))
	ch := bus.Subscribe(TopicTaskCompleted)
	_, ok := <-ch
	require.False(t, ok)
}
