// Package api is the control surface: a chi router exposing health, live
// state, the recordings catalogue, playback control, runtime settings,
// Prometheus metrics, and a WebSocket stream of pipeline updates.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/config"
	"github.com/snarg/f12mqtt/internal/metrics"
	"github.com/snarg/f12mqtt/internal/mqttclient"
	"github.com/snarg/f12mqtt/internal/settings"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger

	live         LiveSource
	mqtt         *mqttclient.Client
	commands     *Commands
	settings     *settings.Store
	hub          *Hub
	onFavourites func([]string)
	onNotifier   func(bool)
	version      string
	startTime    time.Time
}

type Options struct {
	Config   *config.Config
	Live     LiveSource // nil when live ingest is disabled
	MQTT     *mqttclient.Client
	Commands *Commands
	Settings *settings.Store
	Hub      *Hub

	// OnFavourites and OnNotifier propagate settings changes to the
	// publisher without the api package importing it.
	OnFavourites func([]string)
	OnNotifier   func(bool)

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		live:         opts.Live,
		mqtt:         opts.MQTT,
		commands:     opts.Commands,
		settings:     opts.Settings,
		hub:          opts.Hub,
		onFavourites: opts.OnFavourites,
		onNotifier:   opts.OnNotifier,
		version:      opts.Version,
		startTime:    opts.StartTime,
		log:          opts.Log,
	}

	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Health and metrics — no auth
	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))

		r.Get("/api/v1/state", s.handleState)
		r.Get("/api/v1/sessions", s.handleSessionList)
		r.Get("/api/v1/sessions/{id}", s.handleSessionGet)
		r.Get("/api/v1/playback", s.handlePlaybackGet)
		r.Post("/api/v1/playback", s.handlePlaybackCommand)
		r.Get("/api/v1/settings", s.handleSettingsGet)
		r.Put("/api/v1/settings", s.handleSettingsPut)
		r.Get("/api/v1/ws", s.hub.ServeHTTP)
	})

	s.http = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
