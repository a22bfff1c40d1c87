// Moderation event handler.
//
// Trust-and-safety publishes user moderation events to this internal
// endpoint. Ban and suspension events override the state machine and
// terminate every non-terminal hiring of the user; reactivation touches
// nothing, so hirings terminated by a past ban stay terminated.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ModerationEventRequest is the JSON payload for a moderation event.
type ModerationEventRequest struct {
	UserID string `json:"user_id" binding:"required" example:"user123"`
	Event  string `json:"event"   binding:"required" example:"banned"`
	Reason string `json:"reason"  example:"terms violation"`
}

// ModerationEventResponse reports how many hirings the event affected.
type ModerationEventResponse struct {
	Event              string `json:"event"`
	HiringsTerminated  int64  `json:"hirings_terminated"`
}

// ModerationEvent godoc
// @ID          moderationEvent
// @Summary     Apply a user moderation event
// @Description Terminates the non-terminal hirings of a banned or suspended user. "reactivated" is acknowledged without touching any hiring.
// @Tags        Moderation
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ModerationEventRequest  true  "Moderation event"
//
// @Success     200  {object} handlers.ModerationEventResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown event"
// @Router      /internal/moderation/events [post]
func (h *Handlers) ModerationEvent(c *gin.Context) {
	var req ModerationEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	event := strings.ToLower(strings.TrimSpace(req.Event))
	var (
		n   int64
		err error
	)
	switch event {
	case "banned":
		n, err = h.moderation.UserBanned(ctx, req.UserID, req.Reason)
	case "suspended":
		n, err = h.moderation.UserSuspended(ctx, req.UserID, req.Reason)
	case "reactivated":
		err = h.moderation.UserReactivated(ctx, req.UserID)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown moderation event")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ModerationEventResponse{Event: event, HiringsTerminated: n})
}
