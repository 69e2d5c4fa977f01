package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWebsocket "github.com/gorilla/websocket"
	"github.com/voltbridge/ocpp-gateway/internal/cache"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	"github.com/voltbridge/ocpp-gateway/internal/events"
)

// CreateHandler builds the upgrade handler for one listener. Credentials
// are checked before the upgrade and the session is registered in the
// shared cache before the first frame is read, so cross-instance routing
// never sees a connected station it cannot reach.
func (m *Manager) CreateHandler(handler Handler, listener config.Listener) func(*gin.Context) {
	upgrader := gorillaWebsocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   bufferSize,
		WriteBufferSize:  bufferSize,
		Subprotocols:     []string{m.config.OCPP.Subprotocol},
		CheckOrigin: func(_ *http.Request) bool {
			// Stations are not browsers; Origin carries no trust here.
			return true
		},
		EnableCompression: true,
	}

	return func(c *gin.Context) {
		stationID := c.Param("stationId")
		if stationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "station id is required"})
			return
		}

		if listener.SecurityProfile == config.SecurityProfileBasicAuth ||
			listener.SecurityProfile == config.SecurityProfileTLSBasicAuth {
			username, password, ok := c.Request.BasicAuth()
			if !ok || username != stationID ||
				m.authenticator.Authenticate(c.Request.Context(), stationID, password) != nil {
				m.metrics.IncrementRPCErrors(stationID, "unauthorized")
				c.Header("WWW-Authenticate", `Basic realm="ocpp", charset="UTF-8"`)
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
		}

		err := m.cache.Set(c.Request.Context(), cache.NamespaceSessions, stationID, m.config.OCPP.InstanceID, m.sessionTTL())
		if err != nil {
			slog.Error("Failed to register session", "station", stationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Try again later"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to set websocket upgrade", "station", stationID, "error", err)
			return
		}

		// The station must have offered the configured subprotocol. The
		// handshake is already complete at this point, so the refusal is a
		// close frame rather than an HTTP status.
		if conn.Subprotocol() != m.config.OCPP.Subprotocol {
			m.metrics.IncrementRPCErrors(stationID, "subprotocol_mismatch")
			_ = conn.WriteControl(
				gorillaWebsocket.CloseMessage,
				gorillaWebsocket.FormatCloseMessage(gorillaWebsocket.CloseProtocolError, "unsupported subprotocol"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			m.dropRegistration(stationID)
			return
		}

		m.serve(c.Request.Context(), conn, handler, listener, stationID, c.Request.RemoteAddr)
	}
}

func (m *Manager) serve(ctx context.Context, conn *gorillaWebsocket.Conn, handler Handler, listener config.Listener, stationID string, remoteAddr string) {
	// A reconnect replaces the previous session. The stale connection is
	// closed here so its teardown cannot unregister the new one.
	if stale, loaded := m.sessions.LoadAndDelete(stationID); loaded {
		close(stale.done)
		_ = stale.conn.Close()
	}

	session := &session{
		conn:   conn,
		writer: make(chan Message, bufferSize),
		done:   make(chan struct{}),
	}
	m.sessions.Store(stationID, session)
	m.connectedClients.Inc()
	m.metrics.IncrementStationConnections(stationID)
	m.events.Publish(events.ConnectEvent{
		StationID:       stationID,
		RemoteAddr:      remoteAddr,
		SecurityProfile: listener.SecurityProfile,
	})
	slog.Info("Station connected", "station", stationID, "profile", listener.SecurityProfile)

	serveCtx, cancel := context.WithCancel(ctx)
	handler.OnConnect(serveCtx, stationID)

	defer func() {
		cancel()
		if current, loaded := m.sessions.Load(stationID); loaded && current == session {
			m.sessions.Delete(stationID)
			m.dropRegistration(stationID)
		}
		select {
		case <-session.done:
		default:
			close(session.done)
		}
		_ = conn.Close()
		handler.OnDisconnect(context.WithoutCancel(serveCtx), stationID)
		m.connectedClients.Dec()
		m.metrics.DecrementStationConnections(stationID)
		m.events.Publish(events.DisconnectEvent{StationID: stationID})
		slog.Info("Station disconnected", "station", stationID)
	}()

	// Silence for two ping intervals tears the connection down.
	deadline := 2 * m.pingInterval()
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		err := m.cache.Set(context.WithoutCancel(serveCtx), cache.NamespaceSessions, stationID, m.config.OCPP.InstanceID, m.sessionTTL())
		if err != nil {
			slog.Warn("Failed to refresh session", "station", stationID, "error", err)
		}
		return nil
	})

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				// A deadline hit means the station went silent for two ping
				// intervals. Tell it so before the socket drops.
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					slog.Warn("Session timed out waiting for pong", "station", stationID)
					_ = conn.WriteControl(
						gorillaWebsocket.CloseMessage,
						gorillaWebsocket.FormatCloseMessage(gorillaWebsocket.CloseInternalServerErr, "no pong received"),
						time.Now().Add(time.Second))
				}
				select {
				case <-session.done:
				default:
					close(session.done)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(deadline))
			m.events.Publish(events.ReceivedEvent{StationID: stationID, Raw: msg})
			handler.OnMessage(serveCtx, stationID, msg)
		}
	}()

	ticker := time.NewTicker(m.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-serveCtx.Done():
			return
		case <-session.done:
			return
		case <-ticker.C:
			err := conn.WriteControl(gorillaWebsocket.PingMessage, nil, time.Now().Add(time.Second))
			if err != nil {
				return
			}
		case msg := <-session.writer:
			err := conn.WriteMessage(msg.Type, msg.Data)
			if err != nil {
				return
			}
		}
	}
}

// dropRegistration removes the shared-cache entry only while this instance
// still owns it; a station that reconnected elsewhere keeps its new entry.
func (m *Manager) dropRegistration(stationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	owner, found, err := m.cache.Get(ctx, cache.NamespaceSessions, stationID)
	if err != nil || !found || owner != m.config.OCPP.InstanceID {
		return
	}
	if _, err := m.cache.Remove(ctx, cache.NamespaceSessions, stationID); err != nil {
		slog.Warn("Failed to unregister session", "station", stationID, "error", err)
	}
}
