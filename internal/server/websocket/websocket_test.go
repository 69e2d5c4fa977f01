package websocket_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWebsocket "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltbridge/ocpp-gateway/internal/auth"
	"github.com/voltbridge/ocpp-gateway/internal/cache"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	"github.com/voltbridge/ocpp-gateway/internal/events"
	"github.com/voltbridge/ocpp-gateway/internal/metrics"
	"github.com/voltbridge/ocpp-gateway/internal/server/websocket"
)

var testMetrics = metrics.NewMetrics()

type recordingHandler struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *recordingHandler) OnConnect(_ context.Context, _ string)    {}
func (h *recordingHandler) OnDisconnect(_ context.Context, _ string) {}

func (h *recordingHandler) OnMessage(_ context.Context, _ string, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) received() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.messages...)
}

type fixture struct {
	manager *websocket.Manager
	handler *recordingHandler
	cache   cache.Cache
	events  *events.EventBus
	server  *httptest.Server
}

func newFixture(t *testing.T, profile config.SecurityProfile, pingIntervalSeconds uint) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		OCPP: config.OCPP{
			Subprotocol:         config.DefaultOCPPSubprotocol,
			InstanceID:          "gw-test",
			TenantID:            config.DefaultOCPPTenantID,
			PingIntervalSeconds: pingIntervalSeconds,
			CallTimeoutSeconds:  config.DefaultOCPPCallTimeout,
		},
	}
	stationCache := cache.NewMemory()
	authenticator := &auth.StaticAuthenticator{Credentials: map[string]string{"cp001": "s3cret"}}
	eventBus := events.NewEventBus()
	manager := websocket.NewManager(cfg, stationCache, testMetrics, eventBus, authenticator)

	handler := &recordingHandler{}
	r := gin.New()
	r.GET("/:stationId", manager.CreateHandler(handler, config.Listener{SecurityProfile: profile}))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &fixture{manager: manager, handler: handler, cache: stationCache, events: eventBus, server: server}
}

func (f *fixture) dial(t *testing.T, stationID string, header http.Header) (*gorillaWebsocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := gorillaWebsocket.Dialer{
		Subprotocols: []string{config.DefaultOCPPSubprotocol},
	}
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/" + stationID
	return dialer.Dial(url, header)
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestUpgradeRegistersSession(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, config.DefaultOCPPPingInterval)

	conn, _, err := f.dial(t, "cp001", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, config.DefaultOCPPSubprotocol, conn.Subprotocol())
	waitFor(t, func() bool { return f.manager.IsConnected("cp001") })

	owner, found, err := f.cache.Get(context.Background(), cache.NamespaceSessions, "cp001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "gw-test", owner)
	assert.EqualValues(t, 1, f.manager.ConnectedClients())

	select {
	case event := <-f.events.GetChannel():
		connect, ok := event.(events.ConnectEvent)
		require.True(t, ok, "expected a connect event, got %T", event)
		assert.Equal(t, "cp001", connect.StationID)
		assert.Equal(t, config.SecurityProfileOpen, connect.SecurityProfile)
	case <-time.After(time.Second):
		t.Fatal("no connect event published")
	}
}

func TestSendAndReceive(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, config.DefaultOCPPPingInterval)

	conn, _, err := f.dial(t, "cp001", nil)
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return f.manager.IsConnected("cp001") })

	require.NoError(t, f.manager.Send("cp001", []byte(`[2, "1", "Heartbeat", {}]`)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `[2, "1", "Heartbeat", {}]`, string(frame))

	require.NoError(t, conn.WriteMessage(gorillaWebsocket.TextMessage, []byte(`[3, "1", {}]`)))
	waitFor(t, func() bool { return len(f.handler.received()) == 1 })
	assert.JSONEq(t, `[3, "1", {}]`, string(f.handler.received()[0]))
}

func TestSendToUnknownStation(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, config.DefaultOCPPPingInterval)

	err := f.manager.Send("cp404", []byte(`[2, "1", "Heartbeat", {}]`))
	assert.ErrorIs(t, err, websocket.ErrNotConnected)
}

func TestBasicAuthRequired(t *testing.T) {
	f := newFixture(t, config.SecurityProfileBasicAuth, config.DefaultOCPPPingInterval)

	// No credentials at all.
	_, resp, err := f.dial(t, "cp001", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	// Wrong password.
	header := http.Header{}
	header.Set("Authorization", "Basic "+basicAuth("cp001", "wrong"))
	_, resp, err = f.dial(t, "cp001", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Username must match the station id in the path.
	header.Set("Authorization", "Basic "+basicAuth("cp002", "s3cret"))
	_, resp, err = f.dial(t, "cp001", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct credentials.
	header.Set("Authorization", "Basic "+basicAuth("cp001", "s3cret"))
	conn, _, err := f.dial(t, "cp001", header)
	require.NoError(t, err)
	conn.Close()
}

func TestSubprotocolMismatchCloses(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, config.DefaultOCPPPingInterval)

	// Offer nothing; the server completes the handshake and then closes.
	dialer := gorillaWebsocket.Dialer{}
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/cp001"
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, gorillaWebsocket.IsCloseError(err, gorillaWebsocket.CloseProtocolError))
}

func TestSilentSessionIsTornDown(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, 1)

	conn, _, err := f.dial(t, "cp001", nil)
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return f.manager.IsConnected("cp001") })

	// Never reading means pings are never answered; after two intervals the
	// server gives up on the session.
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if !f.manager.IsConnected("cp001") {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	assert.False(t, f.manager.IsConnected("cp001"))

	_, found, err := f.cache.Get(context.Background(), cache.NamespaceSessions, "cp001")
	require.NoError(t, err)
	assert.False(t, found, "registry entry should be removed on teardown")
}

func TestDeadSessionClosedWithInternalError(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, 1)

	conn, _, err := f.dial(t, "cp001", nil)
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return f.manager.IsConnected("cp001") })

	// Swallow pings instead of answering them; the station keeps reading so
	// it sees how the server closes the connection.
	conn.SetPingHandler(func(string) error { return nil })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}
	assert.True(t, gorillaWebsocket.IsCloseError(err, gorillaWebsocket.CloseInternalServerErr), "unexpected close: %v", err)
}

func TestReconnectReplacesSession(t *testing.T) {
	f := newFixture(t, config.SecurityProfileOpen, config.DefaultOCPPPingInterval)

	first, _, err := f.dial(t, "cp001", nil)
	require.NoError(t, err)
	defer first.Close()
	waitFor(t, func() bool { return f.manager.IsConnected("cp001") })

	second, _, err := f.dial(t, "cp001", nil)
	require.NoError(t, err)
	defer second.Close()

	// The replacement keeps the station reachable; the old socket dies.
	waitFor(t, func() bool {
		if !f.manager.IsConnected("cp001") {
			return false
		}
		return f.manager.Send("cp001", []byte(`[2, "1", "Heartbeat", {}]`)) == nil
	})
	_, _, err = second.ReadMessage()
	require.NoError(t, err)
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
