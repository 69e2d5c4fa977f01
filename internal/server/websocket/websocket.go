// Package websocket owns the charging station sessions: upgrades,
// keepalive, the single writer per connection, and the session registry
// shared across gateway instances.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/voltbridge/ocpp-gateway/internal/auth"
	"github.com/voltbridge/ocpp-gateway/internal/cache"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	"github.com/voltbridge/ocpp-gateway/internal/events"
	"github.com/voltbridge/ocpp-gateway/internal/metrics"
)

const bufferSize = 4096

var ErrNotConnected = errors.New("station not connected")

// Handler receives session lifecycle callbacks and every raw frame read
// from a station.
type Handler interface {
	OnConnect(ctx context.Context, stationID string)
	OnMessage(ctx context.Context, stationID string, msg []byte)
	OnDisconnect(ctx context.Context, stationID string)
}

type Message struct {
	Type int
	Data []byte
}

type session struct {
	conn   *websocket.Conn
	writer chan Message
	done   chan struct{}
}

type Manager struct {
	config        *config.Config
	cache         cache.Cache
	metrics       *metrics.Metrics
	events        *events.EventBus
	authenticator auth.Authenticator

	connectedClients *xsync.Counter
	sessions         *xsync.MapOf[string, *session]
}

func NewManager(cfg *config.Config, stationCache cache.Cache, metrics *metrics.Metrics, eventBus *events.EventBus, authenticator auth.Authenticator) *Manager {
	return &Manager{
		config:           cfg,
		cache:            stationCache,
		metrics:          metrics,
		events:           eventBus,
		authenticator:    authenticator,
		connectedClients: xsync.NewCounter(),
		sessions:         xsync.NewMapOf[string, *session](),
	}
}

func (m *Manager) pingInterval() time.Duration {
	return time.Duration(m.config.OCPP.PingIntervalSeconds) * time.Second
}

// sessionTTL keeps the registry entry alive across two missed pings, the
// same window after which the connection itself is torn down.
func (m *Manager) sessionTTL() time.Duration {
	return 2 * m.pingInterval()
}

// Send queues a text frame on the station's writer. The write is accepted,
// not confirmed; delivery failures surface as a session close.
func (m *Manager) Send(stationID string, data []byte) error {
	session, loaded := m.sessions.Load(stationID)
	if !loaded {
		return ErrNotConnected
	}
	select {
	case session.writer <- Message{Type: websocket.TextMessage, Data: data}:
		m.events.Publish(events.SentEvent{StationID: stationID, Raw: data})
		return nil
	case <-session.done:
		return ErrNotConnected
	}
}

// IsConnected reports whether the station has a live session on this
// instance.
func (m *Manager) IsConnected(stationID string) bool {
	_, loaded := m.sessions.Load(stationID)
	return loaded
}

func (m *Manager) ConnectedClients() int64 {
	return m.connectedClients.Value()
}

// Shutdown closes every session with a going-away frame and waits for the
// serve loops to unwind.
func (m *Manager) Shutdown(ctx context.Context) {
	m.sessions.Range(func(stationID string, session *session) bool {
		deadline := time.Now().Add(time.Second)
		err := session.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			deadline)
		if err != nil {
			slog.Warn("Error closing station session", "station", stationID, "error", err)
		}
		_ = session.conn.Close()
		return true
	})

	for m.connectedClients.Value() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}
