// Package events provides in-process publish/subscribe for loopctl,
// decoupling mid-cycle replanning and observers from the main cycle loop.
package events

import "time"

// Topic identifies one of the fixed event topics.
type Topic string

const (
	// TopicTaskCompleted is published whenever a worker commits a successful task.
	TopicTaskCompleted Topic = "task:completed"
	// TopicTaskFailed is published whenever a task is released or marked failed.
	TopicTaskFailed Topic = "task:failed"
	// TopicPlannerWakeup is published by the Wakeup Controller when its
	// completion threshold is reached.
	TopicPlannerWakeup Topic = "planner:wakeup"
)

// TopicAll is the wildcard subscription, receiving every published event
// regardless of topic.
const TopicAll Topic = "*"

// Event is a single published occurrence.
type Event struct {
	Topic  Topic     `json:"topic"`
	TaskID string    `json:"task_id,omitempty"`
	Data   any       `json:"data,omitempty"`
	Time   time.Time `json:"time"`
}

// New creates an Event stamped with the current time.
func New(topic Topic, taskID string, data any) Event {
	return Event{Topic: topic, TaskID: taskID, Data: data, Time: time.Now()}
}

// TaskCompletedData is the payload for TopicTaskCompleted.
type TaskCompletedData struct {
	Title string `json:"title"`
	Agent string `json:"agent"`
}

// TaskFailedData is the payload for TopicTaskFailed.
type TaskFailedData struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Terminal bool   `json:"terminal"`
}

// WakeupData is the payload for TopicPlannerWakeup.
type WakeupData struct {
	Reason string `json:"reason"`
}
