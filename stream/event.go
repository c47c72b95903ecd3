package stream

import "time"

// EventType names every lifecycle and output event the execution core emits.
type EventType string

const (
	EventExecutionQueued        EventType = "execution-queued"
	EventExecutionStarted       EventType = "execution-started"
	EventDependencyInstallStart EventType = "dependency-installation-started"
	EventDependencyInstallOut   EventType = "dependency-installation-output"
	EventDependencyInstallErr   EventType = "dependency-installation-error"
	EventDependencyInstallDone  EventType = "dependency-installation-completed"
	EventTestOutput             EventType = "test-output"
	EventTestError              EventType = "test-error"
	EventTestCompleted          EventType = "test-completed"
	EventExecutionError         EventType = "test-execution-error"
)

// ChannelAll receives every execution event regardless of session, for
// observers that watch all runs.
const ChannelAll = "executions"

// Event is the wire model delivered to streaming subscribers.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// stamped returns the event with an ISO-8601 timestamp filled in when the
// caller omitted one.
func (e Event) stamped() Event {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return e
}

// Emitter is the narrow interface the execution core uses to publish events.
type Emitter interface {
	Emit(sessionID string, event Event)
}
