package common

import (
	"encoding/json"
	"time"
)

// --------------------------------------------------------------------------
// Pipeline State
// --------------------------------------------------------------------------

// State is the lifecycle state of a stream pipeline
type State uint8

const (
	StateIdle      State = iota // created, not started
	StateListening              // waiting for a producer
	StateConnected              // a producer is streaming
	StateStopping               // Stop in progress
	StateStopped                // terminal
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the state as its string representation
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// --------------------------------------------------------------------------
// Status Events
// --------------------------------------------------------------------------

// Event names the transition a Status reports
type Event uint8

const (
	EventListening      Event = iota + 1 // listener created
	EventConnected                       // producer accepted
	EventConnectionLost                  // producer disconnected or failed, back to standby
	EventPeerStopped                     // producer sent the stop byte, back to standby
	EventSinkFailed                      // the sink rejected a payload, pipeline stops
	EventClosed                          // pipeline stopped
)

// String returns the string representation of an Event
func (e Event) String() string {
	switch e {
	case EventListening:
		return "listening"
	case EventConnected:
		return "connected"
	case EventConnectionLost:
		return "connection lost"
	case EventPeerStopped:
		return "peer stopped"
	case EventSinkFailed:
		return "sink failed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the event as its string representation
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// Status is reported to the host on every pipeline transition
type Status struct {
	Pipeline string    `json:"pipeline"`
	State    State     `json:"state"`
	Event    Event     `json:"event"`
	Message  string    `json:"message"`
	Addr     string    `json:"addr,omitempty"`    // listen address or remote address
	Session  string    `json:"session,omitempty"` // id of the producer connection
	Time     time.Time `json:"time"`
}
