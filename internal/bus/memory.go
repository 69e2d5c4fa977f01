package bus

import (
	"context"
	"log/slog"
	"sync"
)

type memorySubscription struct {
	stationID string
	filter    Filter
	handler   Handler
}

// Memory is an in-process bus implementing both Sender and Receiver.
// Delivery is synchronous, which makes request/reply flows deterministic in
// tests and single-process deployments.
type Memory struct {
	mu            sync.RWMutex
	subscriptions map[string][]memorySubscription
}

func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[string][]memorySubscription),
	}
}

func (m *Memory) Send(ctx context.Context, msg Message) error {
	m.mu.RLock()
	subs := make([]memorySubscription, len(m.subscriptions[msg.Context.StationID]))
	copy(subs, m.subscriptions[msg.Context.StationID])
	m.mu.RUnlock()

	for _, sub := range subs {
		if !sub.filter.Matches(msg) {
			continue
		}
		if err := sub.handler(ctx, msg); err != nil {
			// An in-process bus has no redelivery; retryable or not, all we
			// can do is log it.
			slog.Error("Bus handler failed", "station", msg.Context.StationID, "action", msg.Action, "error", err)
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, stationID string, filter Filter, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[stationID] = append(m.subscriptions[stationID], memorySubscription{
		stationID: stationID,
		filter:    filter,
		handler:   handler,
	})
	return nil
}

func (m *Memory) Unsubscribe(stationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, stationID)
	return nil
}
