package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/core"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	users     *auth.Service
	cookieTTL time.Duration
	log       *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(users *auth.Service, cookieTTL time.Duration, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		users:     users,
		cookieTTL: cookieTTL,
		log:       logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID    int64  `json:"id"`
	Token string `json:"token,omitempty"`
}

// CreateUser issues a new user and binds its token to the client.
// POST /api/user/create
func (h *UserHandlers) CreateUser(c *gin.Context) {
	user, err := h.users.CreateUser(c.Request.Context())
	if err != nil {
		writeError(c, h.log, core.Internal("create user", err))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		TokenCookie,
		user.Token,
		int(h.cookieTTL.Seconds()),
		"/",
		"",
		false, // secure (set to true in production with HTTPS)
		true,  // httpOnly
	)

	h.log.Info().Int64("user_id", user.ID).Msg("user created")
	c.JSON(http.StatusCreated, UserResponse{ID: user.ID, Token: user.Token})
}

// CurrentUser returns the user owning the request token.
// GET /api/user
func (h *UserHandlers) CurrentUser(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		writeError(c, h.log, core.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, UserResponse{ID: uid})
}
