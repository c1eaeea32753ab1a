package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/core"
	"github.com/vovakirdan/studyroom-server/internal/proto"
	"github.com/vovakirdan/studyroom-server/internal/service/rooms"
)

// TimerHandlers exposes room timers over HTTP.
type TimerHandlers struct {
	rooms *rooms.Service
	log   *zerolog.Logger
}

// NewTimerHandlers creates a new timer handlers instance.
func NewTimerHandlers(svc *rooms.Service, logger *zerolog.Logger) *TimerHandlers {
	return &TimerHandlers{rooms: svc, log: logger}
}

// TimerRequest is an owner command: start, stop, break, work or length.
type TimerRequest struct {
	Operation string    `json:"operation"`
	Length    proto.Int `json:"length"`
}

// GetTimer returns the room timer.
// GET /api/timer/:id
func (h *TimerHandlers) GetTimer(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}

	snap, err := h.rooms.Timer(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, timerView(snap))
}

// UpdateTimer applies an owner command to the room timer.
// POST /api/timer/:id
func (h *TimerHandlers) UpdateTimer(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.log, core.ErrUnauthorized)
		return
	}
	id, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req TimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid timer request")
		badRequest(c, "invalid request body")
		return
	}
	kind, ok := core.ParseTimerOperation(req.Operation)
	if !ok {
		badRequest(c, "unknown timer operation")
		return
	}

	cmd := core.TimerCommand{Kind: kind, Length: int(req.Length)}
	if err := h.rooms.TimerCommand(c.Request.Context(), id, uid, cmd); err != nil {
		writeError(c, h.log, err)
		return
	}

	snap, err := h.rooms.Timer(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, timerView(snap))
}
