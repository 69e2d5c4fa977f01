// Package bus decouples the gateway from the business modules that
// interpret protocol actions. The gateway publishes validated requests and
// routes replies back; everything in between happens on the other side of
// a Sender/Receiver pair so the broker technology stays swappable.
package bus

import (
	"context"
	"encoding/json"
	"errors"
)

// Origin tags who produced a message so a subscriber can refuse its own
// publications on at-least-once brokers.
type Origin string

const (
	OriginStation Origin = "station"
	OriginBackend Origin = "backend"
)

// State distinguishes requests from responses on the wire.
type State string

const (
	StateRequest  State = "request"
	StateResponse State = "response"
)

// EventGroupGeneral is the default event group for gateway-published
// messages.
const EventGroupGeneral = "general"

// Context carries the correlation metadata a module needs to reply.
type Context struct {
	CorrelationID string `json:"correlationId"`
	StationID     string `json:"stationId"`
	TenantID      string `json:"tenantId"`
}

// Message is the envelope exchanged with business modules.
type Message struct {
	Origin     Origin          `json:"origin"`
	EventGroup string          `json:"eventGroup"`
	Action     string          `json:"action"`
	State      State           `json:"state"`
	Context    Context         `json:"context"`
	Payload    json.RawMessage `json:"payload"`
}

// ErrRetryable marks a delivery failure the broker may retry (nack rather
// than drop). Wrap it: fmt.Errorf("...: %w", bus.ErrRetryable).
var ErrRetryable = errors.New("retryable delivery failure")

// Handler consumes one message. Returning an error wrapping ErrRetryable
// asks the broker to redeliver where it can; any other error drops the
// message.
type Handler func(ctx context.Context, msg Message) error

// Filter bounds a subscription's fan-out. Empty Actions matches every
// action; empty State/Origin match everything.
type Filter struct {
	Actions []string
	State   State
	Origin  Origin
}

// Matches reports whether msg passes the filter.
func (f Filter) Matches(msg Message) bool {
	if f.State != "" && msg.State != f.State {
		return false
	}
	if f.Origin != "" && msg.Origin != f.Origin {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, action := range f.Actions {
		if action == msg.Action {
			return true
		}
	}
	return false
}

// Sender publishes messages onto the bus.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Receiver registers per-station subscriptions.
type Receiver interface {
	Subscribe(ctx context.Context, stationID string, filter Filter, handler Handler) error
	Unsubscribe(stationID string) error
}
