package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the socket.io endpoint and a stats endpoint.
func RegisterRoutes(r *gin.Engine, api *gin.RouterGroup, hub *Hub) {
	handler := gin.WrapH(hub.Handler())
	r.Any("/socket.io", handler)
	r.Any("/socket.io/*any", handler)

	api.GET("/gateway/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"clients": hub.ClientCount(""),
			"rooms":   hub.RoomCount(),
		})
	})
}

// Handler returns the socket.io HTTP handler.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
