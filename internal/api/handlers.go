package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/recorder"
)

// LiveSource exposes the live accumulator's current snapshot. The state
// accumulator implements this; nil when live ingest is disabled.
type LiveSource interface {
	Snapshot() *model.Snapshot
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if s.live != nil {
		checks["live"] = "ok"
	} else {
		checks["live"] = "disabled"
	}
	checks["playback"] = string(s.commands.Controller.State().Status)

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Checks:        checks,
	})
}

// handleState returns the current live snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		WriteError(w, http.StatusNotFound, "live ingest disabled")
		return
	}
	WriteJSON(w, http.StatusOK, s.live.Snapshot())
}

type sessionListResponse struct {
	Sessions []recorder.Session `json:"sessions"`
	Count    int                `json:"count"`
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	sessions := s.commands.Store.List()
	WriteJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions, Count: len(sessions)})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.commands.Store.Load(id)
	if err != nil {
		WriteErrorDetail(w, http.StatusNotFound, "session not found", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"metadata": rec.Metadata,
		"entries":  len(rec.Entries),
	})
}

func (s *Server) handlePlaybackGet(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.commands.Controller.State())
}

func (s *Server) handlePlaybackCommand(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := DecodeJSON(r, &cmd); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid command body", err.Error())
		return
	}
	if err := s.commands.Execute(cmd); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("command", cmd.Command).Msg("playback command rejected")
		WriteErrorDetail(w, http.StatusBadRequest, "command failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, s.commands.Controller.State())
}

type settingsResponse struct {
	Favourites      []string `json:"favourites"`
	NotifierEnabled bool     `json:"notifier_enabled"`
}

type settingsRequest struct {
	Favourites      *[]string `json:"favourites,omitempty"`
	NotifierEnabled *bool     `json:"notifier_enabled,omitempty"`
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	favourites, err := s.settings.Favourites()
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "settings read failed", err.Error())
		return
	}
	notifier, err := s.settings.NotifierEnabled(false)
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "settings read failed", err.Error())
		return
	}
	if favourites == nil {
		favourites = []string{}
	}
	WriteJSON(w, http.StatusOK, settingsResponse{
		Favourites:      favourites,
		NotifierEnabled: notifier,
	})
}

// handleSettingsPut updates only the fields present in the body. Favourite
// changes take effect at the next session registration.
func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid settings body", err.Error())
		return
	}

	if req.Favourites != nil {
		if err := s.settings.SetFavourites(*req.Favourites); err != nil {
			WriteErrorDetail(w, http.StatusInternalServerError, "settings write failed", err.Error())
			return
		}
		if s.onFavourites != nil {
			s.onFavourites(*req.Favourites)
		}
	}
	if req.NotifierEnabled != nil {
		if err := s.settings.SetNotifierEnabled(*req.NotifierEnabled); err != nil {
			WriteErrorDetail(w, http.StatusInternalServerError, "settings write failed", err.Error())
			return
		}
		if s.onNotifier != nil {
			s.onNotifier(*req.NotifierEnabled)
		}
	}

	s.handleSettingsGet(w, r)
}
