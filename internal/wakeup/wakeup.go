// Package wakeup implements the one-shot mid-cycle replan signal: a
// mutex-guarded counter that flips a boolean flag once a configured number
// of task completions have been observed since the last reset.
package wakeup

import (
	"sync"

	"github.com/loopctl/loopctl/internal/events"
)

// DefaultThreshold is the number of completions that trigger a wakeup when
// no explicit threshold is configured.
const DefaultThreshold = 3

// Controller counts task:completed events and raises planner:wakeup once
// Threshold completions have accumulated since the last Reset.
type Controller struct {
	bus       events.Publisher
	threshold int

	mu      sync.Mutex
	count   int
	pending bool
	enabled bool

	sub  <-chan events.Event
	done chan struct{}
}

// New creates a Controller subscribed to bus. The controller starts enabled.
// threshold <= 0 uses DefaultThreshold.
func New(bus events.Publisher, threshold int) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c := &Controller{
		bus:       bus,
		threshold: threshold,
		enabled:   true,
		sub:       bus.Subscribe(events.TopicTaskCompleted),
		done:      make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Controller) loop() {
	for {
		select {
		case _, ok := <-c.sub:
			if !ok {
				return
			}
			c.onCompletion()
		case <-c.done:
			return
		}
	}
}

func (c *Controller) onCompletion() {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	c.count++
	fire := c.count >= c.threshold
	if fire {
		c.count = 0
		c.pending = true
	}
	c.mu.Unlock()

	if fire {
		c.bus.Publish(events.New(events.TopicPlannerWakeup, "", events.WakeupData{Reason: "threshold_reached"}))
	}
}

// Trigger manually raises a wakeup with an explicit reason, regardless of
// the completion counter.
func (c *Controller) Trigger(reason string) {
	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()
	c.bus.Publish(events.New(events.TopicPlannerWakeup, "", events.WakeupData{Reason: reason}))
}

// Enable turns completion counting on.
func (c *Controller) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable turns completion counting off; Trigger still works while disabled.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// Consume returns whether a wakeup is pending and resets the flag. The
// Orchestrator calls this exactly once per cycle, at the end of the worker
// stage.
func (c *Controller) Consume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.pending
	c.pending = false
	c.count = 0
	return pending
}

// Close stops the controller's background subscription loop.
func (c *Controller) Close() {
	close(c.done)
	c.bus.Unsubscribe(events.TopicTaskCompleted, c.sub)
}
