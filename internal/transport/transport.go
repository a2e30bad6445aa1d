// Package transport exposes the controller over HTTP and WebSocket with
// thin handlers: each binds a request, calls one controller method, and
// writes the result as a JSON response.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ChuLiYu/autonomous-cluster/internal/controller"
)

var log = slog.Default()

const pushInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusHandler serves snapshot reads and the job-rate control surface.
type StatusHandler struct {
	controller *controller.Controller
}

// NewStatusHandler binds handlers to one running Controller.
func NewStatusHandler(ctrl *controller.Controller) *StatusHandler {
	return &StatusHandler{controller: ctrl}
}

// GetStatus handles GET /api/status.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

type updateRateRequest struct {
	Rate float64 `json:"rate"`
}

// UpdateJobRate handles POST /api/update-job-rate.
func (h *StatusHandler) UpdateJobRate(c *gin.Context) {
	var req updateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	newRate := h.controller.SetJobGenerationRate(req.Rate)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"new_rate": newRate,
		"message":  "job generation rate updated",
	})
}

// ServeStatusStream handles GET /ws: upgrades the connection and pushes
// a fresh snapshot every 500ms under the event name status_update, until
// a write fails (the client disconnected). Stopping the controller does
// not end the stream.
func (h *StatusHandler) ServeStatusStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	for range ticker.C {
		msg := gin.H{"event": "status_update", "data": h.controller.Snapshot()}
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug("websocket client disconnected", "error", err)
			return
		}
	}
}

// NewRouter builds the full HTTP surface: the status/control API plus the
// WebSocket push channel.
func NewRouter(ctrl *controller.Controller) *gin.Engine {
	router := gin.Default()
	handler := NewStatusHandler(ctrl)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "autonomous-cluster", "status": "running"})
	})

	api := router.Group("/api")
	{
		api.GET("/status", handler.GetStatus)
		api.POST("/update-job-rate", handler.UpdateJobRate)
	}

	router.GET("/ws", handler.ServeStatusStream)

	return router
}
