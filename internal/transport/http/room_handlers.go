package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/core"
	"github.com/vovakirdan/studyroom-server/internal/proto"
	"github.com/vovakirdan/studyroom-server/internal/service/rooms"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	rooms *rooms.Service
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(svc *rooms.Service, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms: svc,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body. Capacity may
// be sent as a number or a numeric string.
type CreateRoomRequest struct {
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Capacity proto.Int `json:"capacity"`
}

// CreateRoomResponse carries the id of the new room.
type CreateRoomResponse struct {
	ID int64 `json:"id"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	OwnerID        int64  `json:"ownerId"`
	Password       bool   `json:"password"`
	Capacity       int    `json:"capacity"`
	UsersConnected int    `json:"usersConnected"`
}

func toRoomResponse(r rooms.Room) RoomResponse {
	return RoomResponse{
		ID:             r.ID,
		Name:           r.Name,
		OwnerID:        r.OwnerID,
		Password:       r.HasPassword,
		Capacity:       r.Capacity,
		UsersConnected: r.UsersConnected,
	}
}

// CreateRoom handles room creation.
// POST /api/room/create
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.log, core.ErrUnauthorized)
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		badRequest(c, "invalid request body")
		return
	}

	id, err := h.rooms.Create(c.Request.Context(), uid, req.Name, req.Password, int(req.Capacity))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, CreateRoomResponse{ID: id})
}

// ListRooms handles listing all rooms.
// GET /api/room/all
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	list, err := h.rooms.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response := make([]RoomResponse, 0, len(list))
	for _, r := range list {
		response = append(response, toRoomResponse(r))
	}
	c.JSON(http.StatusOK, response)
}

// GetRoom returns a single room.
// GET /api/room/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	id, ok := roomIDParam(c)
	if !ok {
		return
	}

	room, err := h.rooms.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(*room))
}

// DeleteRoom removes a room owned by the caller.
// DELETE /api/room/:id
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.log, core.ErrUnauthorized)
		return
	}
	id, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), id, uid); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusOK)
}

func roomIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid room id")
		return 0, false
	}
	return id, true
}
