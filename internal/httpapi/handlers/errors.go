package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/streamchat/internal/chat"
	"github.com/suPer8Hu/streamchat/internal/common"
)

const genericFailure = "An error occurred while processing your request"

type errorReply struct {
	status  int
	code    int
	message string
	details string
}

func classify(err error) errorReply {
	var se *chat.StoreError
	switch {
	case errors.Is(err, chat.ErrMissingOwner):
		return errorReply{http.StatusUnauthorized, 40101, "unauthorized", ""}
	case errors.Is(err, chat.ErrEmptyInput):
		return errorReply{http.StatusBadRequest, 40001, "No valid user input found.", ""}
	case errors.Is(err, chat.ErrSessionNotFound), errors.Is(err, chat.ErrForbidden):
		// hide existence
		return errorReply{http.StatusNotFound, 40004, "session not found", ""}
	case errors.As(err, &se):
		return errorReply{http.StatusInternalServerError, 50001, genericFailure, "store unavailable: " + se.Op}
	case errors.Is(err, chat.ErrModelProvider):
		return errorReply{http.StatusInternalServerError, 50002, genericFailure, "model provider failed"}
	default:
		return errorReply{http.StatusInternalServerError, 50000, genericFailure, ""}
	}
}

func respondError(c *gin.Context, err error) {
	r := classify(err)
	if r.details != "" {
		common.FailWithDetails(c, r.status, r.code, r.message, r.details)
		return
	}
	common.Fail(c, r.status, r.code, r.message)
}
