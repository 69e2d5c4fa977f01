package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces the gateway's subjects on a shared NATS
// deployment.
const subjectPrefix = "ocpp"

func subject(state State, stationID string) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, state, stationID)
}

// NATS implements Sender and Receiver on a NATS connection. One
// subscription per (station, state); action and origin filtering happens
// client-side so business modules never see their own publications.
type NATS struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string][]*nats.Subscription
}

func NewNATS(conn *nats.Conn) *NATS {
	return &NATS{
		conn: conn,
		subs: make(map[string][]*nats.Subscription),
	}
}

func (n *NATS) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bus message: %w", err)
	}
	if err := n.conn.Publish(subject(msg.State, msg.Context.StationID), data); err != nil {
		// NATS publish failures are transient by nature (reconnect buffers,
		// flushes); let the caller re-queue.
		return fmt.Errorf("failed to publish bus message: %w", errors.Join(ErrRetryable, err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, stationID string, filter Filter, handler Handler) error {
	states := []State{filter.State}
	if filter.State == "" {
		states = []State{StateRequest, StateResponse}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, state := range states {
		sub, err := n.conn.Subscribe(subject(state, stationID), func(natsMsg *nats.Msg) {
			var msg Message
			if err := json.Unmarshal(natsMsg.Data, &msg); err != nil {
				slog.Warn("Error unmarshalling bus message", "station", stationID, "error", err)
				return
			}
			if !filter.Matches(msg) {
				return
			}
			if err := handler(ctx, msg); err != nil {
				if errors.Is(err, ErrRetryable) {
					// Core NATS has no redelivery; surface it loudly so a
					// JetStream deployment can turn this into a nak.
					slog.Error("Retryable bus delivery failure", "station", stationID, "action", msg.Action, "error", err)
					return
				}
				slog.Error("Bus handler failed", "station", stationID, "action", msg.Action, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject(state, stationID), err)
		}
		n.subs[stationID] = append(n.subs[stationID], sub)
	}
	return nil
}

func (n *NATS) Unsubscribe(stationID string) error {
	n.mu.Lock()
	subs := n.subs[stationID]
	delete(n.subs, stationID)
	n.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
