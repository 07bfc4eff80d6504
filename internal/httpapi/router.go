package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/streamchat/internal/common"
	"github.com/suPer8Hu/streamchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/streamchat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)
	r.GET("/healthz", h.Healthz)

	// anonymous allowed; identity attached when a token is sent
	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.OptionalAuth(jwtSecret))
	chatGroup.POST("/stream", h.StreamChat)
	chatGroup.GET("/history", h.ListHistory)

	authGroup := r.Group("/chat")
	authGroup.Use(middleware.AuthRequired(jwtSecret))
	authGroup.POST("/streams/:stream_id/cancel", h.CancelStream)
	return r
}
