package wakeup

import (
	"testing"
	"time"

	"github.com/loopctl/loopctl/internal/events"
	"github.com/stretchr/testify/require"
)

func waitForTrue(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestControllerFiresAtThreshold(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()

	wakeups := bus.Subscribe(events.TopicPlannerWakeup)
	c := New(bus, 2)
	defer c.Close()

	bus.Publish(events.New(events.TopicTaskCompleted, "T-1", nil))
	bus.Publish(events.New(events.TopicTaskCompleted, "T-2", nil))

	select {
	case ev := <-wakeups:
		require.Equal(t, events.TopicPlannerWakeup, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected wakeup event")
	}
	waitForTrue(t, c.Consume)
}

func TestControllerThresholdOne(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()
	c := New(bus, 1)
	defer c.Close()

	bus.Publish(events.New(events.TopicTaskCompleted, "T-1", nil))
	waitForTrue(t, c.Consume)
}

func TestControllerDisabledIgnoresCompletions(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()
	c := New(bus, 1)
	defer c.Close()
	c.Disable()

	bus.Publish(events.New(events.TopicTaskCompleted, "T-1", nil))
	time.Sleep(20 * time.Millisecond)
	require.False(t, c.Consume())
}

func TestControllerConsumeResets(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()
	c := New(bus, 1)
	defer c.Close()

	c.Trigger("manual")
	waitForTrue(t, c.Consume)
	require.False(t, c.Consume())
}
