package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/bridge"
	"github.com/safar-hail/service-maps/internal/response"
	"github.com/safar-hail/service-maps/internal/surface"
)

// SurfaceHandler attaches remote map surfaces to the bridge over websocket
// and exposes display introspection for the embedded surface.
type SurfaceHandler struct {
	upgrader websocket.Upgrader
	attach   *bridge.SwitchTransport
	display  *surface.DisplayState
	logger   *zap.Logger
}

// NewSurfaceHandler creates a SurfaceHandler. attach may be nil when the
// service runs an embedded surface; display may be nil in websocket mode.
func NewSurfaceHandler(attach *bridge.SwitchTransport, display *surface.DisplayState, logger *zap.Logger) *SurfaceHandler {
	return &SurfaceHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API gateway enforces origin policy upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		attach:  attach,
		display: display,
		logger:  logger,
	}
}

// RegisterRoutes registers the surface endpoints.
func (h *SurfaceHandler) RegisterRoutes(r *gin.Engine) {
	if h.attach != nil {
		r.GET("/ws/surface", h.Connect)
	}
	if h.display != nil {
		r.GET("/api/v1/map/display", h.Display)
	}
}

// Connect handles GET /ws/surface, upgrading the connection and binding it
// as the active map surface. A newer connection displaces the current one.
func (h *SurfaceHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("surface websocket upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("map surface connected", zap.String("remote", conn.RemoteAddr().String()))
	h.attach.Attach(bridge.NewWebSocketTransport(conn))
}

// Display handles GET /api/v1/map/display, returning what the embedded
// surface currently renders.
func (h *SurfaceHandler) Display(c *gin.Context) {
	response.Success(c, h.display.Snapshot())
}
