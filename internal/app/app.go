package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/config"
	"github.com/vovakirdan/studyroom-server/internal/core"
	applog "github.com/vovakirdan/studyroom-server/internal/log"
	"github.com/vovakirdan/studyroom-server/internal/service/rooms"
	"github.com/vovakirdan/studyroom-server/internal/store"
	"github.com/vovakirdan/studyroom-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/studyroom-server/internal/transport/http"
)

const startupResetTimeout = 10 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	if err := resetLiveState(st); err != nil {
		_ = st.Close()
		return nil, err
	}

	users := auth.NewService(st)
	hub := core.NewHub(st, users, applog.Component(logger, "hub"))
	roomSvc := rooms.New(st, hub, applog.Component(logger, "rooms"))
	server := transporthttp.NewServer(hub, users, roomSvc, cfg, applog.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// resetLiveState drops state that only makes sense while connections are
// alive: membership rows and running timers.
func resetLiveState(st store.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupResetTimeout)
	defer cancel()

	if err := st.ClearMembers(ctx); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	if err := st.StopAllTimers(ctx); err != nil {
		return fmt.Errorf("stop timers: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(ctx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.hub.Shutdown()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		<-hubDone

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
