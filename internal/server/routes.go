package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	websocketManager "github.com/voltbridge/ocpp-gateway/internal/server/websocket"
)

func applyRoutes(r *gin.Engine, manager *websocketManager.Manager, handler websocketManager.Handler, listener config.Listener) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": manager.ConnectedClients(),
		})
	})

	// OCPP-J upgrade path: GET /<stationId> with Upgrade: websocket.
	r.GET("/:stationId", manager.CreateHandler(handler, listener))

	r.NoRoute(func(c *gin.Context) {
		slog.Warn("Not Found", "path", c.Request.URL.Path)
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})
}
