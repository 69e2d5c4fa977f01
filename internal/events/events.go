// Package events carries station lifecycle notifications to anything that
// wants to observe the gateway without sitting in the message path.
package events

import "github.com/voltbridge/ocpp-gateway/internal/config"

type EventType string

const (
	EventTypeConnect    EventType = "connect"
	EventTypeDisconnect EventType = "disconnect"
	EventTypeReceived   EventType = "received"
	EventTypeSent       EventType = "sent"
)

type Event interface {
	GetType() EventType
}

type ConnectEvent struct {
	StationID       string
	RemoteAddr      string
	SecurityProfile config.SecurityProfile
}

func (e ConnectEvent) GetType() EventType {
	return EventTypeConnect
}

type DisconnectEvent struct {
	StationID string
}

func (e DisconnectEvent) GetType() EventType {
	return EventTypeDisconnect
}

type ReceivedEvent struct {
	StationID string
	Raw       []byte
}

func (e ReceivedEvent) GetType() EventType {
	return EventTypeReceived
}

type SentEvent struct {
	StationID string
	Raw       []byte
}

func (e SentEvent) GetType() EventType {
	return EventTypeSent
}

const queueDepth = 100

type EventBus struct {
	eventQueue chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{
		eventQueue: make(chan Event, queueDepth),
	}
}

func (eb *EventBus) GetChannel() chan Event {
	return eb.eventQueue
}

// Publish drops the event when no observer is draining the queue so the
// message path never blocks on observation.
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.eventQueue <- event:
	default:
	}
}
