package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clinsight/ctr-registry-api/internal/realtime"
	"github.com/clinsight/ctr-registry-api/pkg/config"
)

// WSHandler upgrades websocket subscriptions onto the broadcast hub.
type WSHandler struct {
	hub      *realtime.Hub
	cfg      realtime.ClientConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler constructs WSHandler.
func NewWSHandler(hub *realtime.Hub, cfg config.RealtimeConfig, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		hub: hub,
		cfg: realtime.ClientConfig{
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteTimeout,
			PingInterval: cfg.PingInterval,
			PongTimeout:  cfg.PongTimeout,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are handled by the CORS layer in front.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Subscribe upgrades the connection and serves it until it drops. The
// scope query parameter picks what the client sees: "global" (default),
// "study:<id>" or "effort:<id>".
func (h *WSHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := realtime.NewClient(h.hub, conn, c.Query("scope"), h.cfg, h.logger)
	client.Serve(c.Request.Context())
}
