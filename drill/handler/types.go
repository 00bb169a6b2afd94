package handler

import (
	"time"

	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/session"
)

// State is a step of the per-connection protocol
type State int

const (
	AwaitingIdentity State = iota
	Active
	Exiting
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingIdentity:
		return "awaiting_identity"
	case Active:
		return "active"
	case Exiting:
		return "exiting"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Room is the part of the shared room a handler drives
type Room interface {
	Enter(o *engine.Occupant)
	TryMove(o *engine.Occupant, dir engine.Direction) bool
	Leave(o *engine.Occupant)
	AcquireMask(o *engine.Occupant)
	InBounds(p engine.Position) bool
}

// Registry records connection progress for monitoring
type Registry interface {
	Create(remoteAddr, state string) session.Info
	Update(id string, fn func(*session.Info)) error
	Delete(id string) error
}

// Publisher receives drill events. Publish must not block.
type Publisher interface {
	Publish(event Event)
}

// Event types
const (
	EventConnected    = "connected"
	EventEntered      = "entered"
	EventMoved        = "moved"
	EventBlocked      = "blocked"
	EventExited       = "exited"
	EventMasked       = "masked"
	EventFreed        = "freed"
	EventDisconnected = "disconnected"
)

// Event describes one protocol step of one connection
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Name      string           `json:"name,omitempty"`
	Pos       engine.Position  `json:"pos"`
	Direction engine.Direction `json:"direction,omitempty"`
	Code      engine.Response  `json:"code,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

type noopRegistry struct{}

func (noopRegistry) Create(remoteAddr, state string) session.Info {
	return session.Info{RemoteAddr: remoteAddr, State: state}
}
func (noopRegistry) Update(string, func(*session.Info)) error { return nil }
func (noopRegistry) Delete(string) error                      { return nil }
