package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/streamchat/internal/chat"
	"github.com/suPer8Hu/streamchat/internal/common"
	"github.com/suPer8Hu/streamchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/streamchat/internal/store/redisstore"
)

const (
	SessionIDHeader = "X-Session-Id"
	StreamIDHeader  = "X-Stream-Id"
)

type streamReq struct {
	Messages  []chat.InboundMessage `json:"messages"`
	SessionID string                `json:"session_id"`
}

func (h *Handler) StreamChat(c *gin.Context) {
	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	uid := middleware.UserID(c)
	log := h.logger().With("request_id", c.GetString(middleware.RequestIDKey), "owner_id", uid)

	streamID, err := common.NewULID()
	if err != nil {
		log.Error("stream id", "err", err)
		respondError(c, err)
		return
	}
	log = log.With("stream_id", streamID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if uid != "" && h.Cancels != nil {
		release, err := h.Cancels.Register(ctx, streamID, uid, cancel)
		if err != nil {
			log.Warn("cancel bus register failed", "err", err)
		} else {
			defer release()
		}
	}

	s, err := h.Pipeline.Start(ctx, chat.Request{OwnerID: uid, SessionID: req.SessionID, Messages: req.Messages})
	if err != nil {
		if r := classify(err); r.status >= 500 {
			log.Error("chat stream failed before streaming", "session_id", req.SessionID, "err", err)
		}
		respondError(c, err)
		return
	}
	log = log.With("session_id", s.SessionID)

	// SSE headers
	c.Header(SessionIDHeader, s.SessionID)
	c.Header(StreamIDHeader, streamID)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		cancel()
		drainStream(s)
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	writeJSON("session", gin.H{"session_id": s.SessionID, "stream_id": streamID})

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	chunks := s.Chunks
	for chunks != nil {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if ch.Done {
				continue
			}
			writeJSON("chunk", gin.H{"seq": ch.Sequence, "delta": ch.Fragment})

		case <-ticker.C:
			writeJSON("ping", gin.H{"ts": time.Now().Unix()})
		}
	}

	res, err := s.Wait()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if c.Request.Context().Err() != nil {
				log.Info("client disconnected")
				return
			}
			writeJSON("error", gin.H{"message": "stream cancelled"})
			return
		}
		r := classify(err)
		writeJSON("error", gin.H{"message": r.message, "details": r.details})
		return
	}

	if res.PersistErr != nil {
		writeJSON("warning", gin.H{"message": "reply was delivered but not saved", "details": classify(res.PersistErr).details})
	}
	writeJSON("done", gin.H{"session_id": res.SessionID, "model": res.Model})
}

func drainStream(s *chat.Stream) {
	for range s.Chunks {
	}
	_, _ = s.Wait()
}

type historyItem struct {
	ID        string    `json:"id"`
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListHistory returns a session's stored messages. Callers that are not the
// owner see an empty history, the same as for an unknown session.
func (h *Handler) ListHistory(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "session_id required")
		return
	}

	ctx := c.Request.Context()
	if uid := middleware.UserID(c); uid != "" && h.Sessions.VerifiesOwner() {
		if err := h.Sessions.CheckOwner(ctx, uid, sessionID); err != nil {
			if errors.Is(err, chat.ErrSessionNotFound) || errors.Is(err, chat.ErrForbidden) {
				common.OK(c, gin.H{"messages": []historyItem{}})
				return
			}
			h.logger().Error("history: owner check failed", "session_id", sessionID, "err", err)
			respondError(c, err)
			return
		}
	}

	msgs, err := h.History.LoadOrdered(ctx, sessionID)
	if err != nil {
		h.logger().Error("history: load failed", "session_id", sessionID, "err", err)
		respondError(c, err)
		return
	}

	out := make([]historyItem, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyItem{
			ID:        strconv.FormatUint(m.ID, 10),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	common.OK(c, gin.H{"messages": out})
}

func (h *Handler) CancelStream(c *gin.Context) {
	uid := middleware.UserID(c)
	streamID := c.Param("stream_id")
	if h.Cancels == nil {
		common.Fail(c, http.StatusNotFound, 40405, "stream not found")
		return
	}

	err := h.Cancels.Cancel(c.Request.Context(), streamID, uid)
	switch {
	case err == nil:
		common.OK(c, gin.H{"stream_id": streamID, "cancelled": true})
	case errors.Is(err, redisstore.ErrStreamNotFound), errors.Is(err, redisstore.ErrNotStreamOwner):
		common.Fail(c, http.StatusNotFound, 40405, "stream not found")
	default:
		h.logger().Error("cancel stream failed", "stream_id", streamID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50003, "cancel failed")
	}
}
