package http

import (
	stdhttp "net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/config"
	"github.com/vovakirdan/studyroom-server/internal/core"
	"github.com/vovakirdan/studyroom-server/internal/service/rooms"
)

// NewServer builds the HTTP server with the JSON API, health check and
// WebSocket endpoint. /ws is served outside gin and CORS; the WebSocket
// handler checks origins itself.
func NewServer(hub *core.Hub, users *auth.Service, roomSvc *rooms.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	userHandlers := NewUserHandlers(users, cfg.TokenCookieTTL, logger)
	roomHandlers := NewRoomHandlers(roomSvc, logger)
	timerHandlers := NewTimerHandlers(roomSvc, logger)
	requireUser := AuthMiddleware(users, logger)

	api := router.Group("/api")
	api.Use(RateLimitMiddleware(NewIPRateLimiter(cfg.APIRateLimit, cfg.APIRateBurst)))
	{
		api.POST("/user/create", userHandlers.CreateUser)
		api.GET("/user", requireUser, userHandlers.CurrentUser)

		api.GET("/room/all", roomHandlers.ListRooms)
		api.POST("/room/create", requireUser, roomHandlers.CreateRoom)
		api.GET("/room/:id", roomHandlers.GetRoom)
		api.DELETE("/room/:id", requireUser, roomHandlers.DeleteRoom)

		api.GET("/timer/:id", timerHandlers.GetTimer)
		api.POST("/timer/:id", requireUser, timerHandlers.UpdateTimer)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg, logger))
	mux.Handle("/", corsHandler(cfg.AllowedOrigins).Handler(router))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			stdhttp.MethodGet,
			stdhttp.MethodPost,
			stdhttp.MethodDelete,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
}

// originHost turns "https://example.com:3000" into "example.com:3000", the
// form WebSocket origin patterns match against.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
