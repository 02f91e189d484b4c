// Package events defines the closed message taxonomy flowing from workers
// to the supervisor and on to the render process. Messages are immutable
// and travel one way.
package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the top-level message category.
type Kind int

const (
	// KindEvent is a component-scoped domain event forwarded to the UI.
	KindEvent Kind = iota
	// KindSystem is a device-level action the supervisor executes itself.
	KindSystem
	// KindConnection is a coarse connectivity signal.
	KindConnection
	// KindReset means the device was de-authenticated (HTTP 401) and a
	// higher layer must re-authenticate it.
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindSystem:
		return "system"
	case KindConnection:
		return "connection"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// SystemAction is the device-level action requested by a worker.
type SystemAction int

const (
	ActionRestart SystemAction = iota
	ActionShutdown
)

func (a SystemAction) String() string {
	if a == ActionShutdown {
		return "shutdown"
	}
	return "restart"
}

// ConnectionState is the coarse connectivity signal.
type ConnectionState int

const (
	ConnectionError ConnectionState = iota
	ConnectionRestored
)

func (s ConnectionState) String() string {
	if s == ConnectionRestored {
		return "restored"
	}
	return "error"
}

// Message is one worker emission. Exactly the fields for its Kind are set:
// Component/Action/Payload for KindEvent, System for KindSystem,
// Connection for KindConnection, nothing extra for KindReset.
type Message struct {
	Kind       Kind
	Component  string
	Action     string
	Payload    map[string]any
	System     SystemAction
	Connection ConnectionState
}

// Event builds a component-scoped domain event.
func Event(component, action string, payload map[string]any) Message {
	return Message{Kind: KindEvent, Component: component, Action: action, Payload: payload}
}

// System builds a device-level action request.
func System(action SystemAction) Message {
	return Message{Kind: KindSystem, System: action}
}

// Connection builds a connectivity signal.
func Connection(state ConnectionState) Message {
	return Message{Kind: KindConnection, Connection: state}
}

// Reset builds a de-authentication signal.
func Reset() Message {
	return Message{Kind: KindReset}
}

// Envelope is a Message annotated by the supervisor with its origin.
type Envelope struct {
	ID     string    `json:"id"`
	Worker string    `json:"worker"`
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`

	Component  string         `json:"component,omitempty"`
	Action     string         `json:"action,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	System     string         `json:"system,omitempty"`
	Connection string         `json:"connection,omitempty"`
}

// Wrap annotates a message with the emitting worker's name and a fresh id.
func Wrap(worker string, msg Message) Envelope {
	env := Envelope{
		ID:     ulid.Make().String(),
		Worker: worker,
		Time:   time.Now().UTC(),
		Kind:   msg.Kind.String(),
	}
	switch msg.Kind {
	case KindEvent:
		env.Component = msg.Component
		env.Action = msg.Action
		env.Payload = msg.Payload
	case KindSystem:
		env.System = msg.System.String()
	case KindConnection:
		env.Connection = msg.Connection.String()
	case KindReset:
	}
	return env
}
