package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/streamchat/internal/chat"
	"github.com/suPer8Hu/streamchat/internal/common"
	"gorm.io/gorm"
)

// CancelBus lets a stream be stopped by id from any request.
type CancelBus interface {
	Register(ctx context.Context, streamID, ownerID string, cancel context.CancelFunc) (func(), error)
	Cancel(ctx context.Context, streamID, ownerID string) error
}

type Handler struct {
	DB        *gorm.DB
	Pipeline  *chat.Pipeline
	History   *chat.History
	Sessions  *chat.SessionManager
	Cancels   CancelBus
	Heartbeat time.Duration
	Log       *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.logger().Error("healthz: db ping failed", "err", err)
		common.Fail(c, http.StatusServiceUnavailable, 50300, "database unavailable")
		return
	}
	common.OK(c, gin.H{"status": "ok"})
}
