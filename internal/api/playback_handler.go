package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-review/internal/playback"
)

// maxPositionMs is the largest millisecond offset a time.Duration can hold.
const maxPositionMs = math.MaxInt64 / int64(time.Millisecond)

func positionDuration(ms int64) (time.Duration, bool) {
	if ms > maxPositionMs || ms < -maxPositionMs {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func playbackStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, PlaybackToResponse(cfg.Playback.State()))
	}
}

// seekHandler moves the playhead. The response reflects the requested
// position immediately; the engine's landing position follows on the event
// stream.
func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.PositionMs == nil {
			WriteError(w, http.StatusBadRequest, "position_ms is required", "BAD_REQUEST")
			return
		}

		target, ok := positionDuration(*req.PositionMs)
		if !ok {
			WriteError(w, http.StatusBadRequest, "position_ms out of range", "BAD_REQUEST")
			return
		}

		st := cfg.Playback.Seek(target)
		WriteJSON(w, http.StatusOK, PlaybackToResponse(st))
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return transportHandler(cfg, cfg.Playback.Play)
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return transportHandler(cfg, cfg.Playback.Pause)
}

func togglePlaybackHandler(cfg ServerConfig) http.HandlerFunc {
	return transportHandler(cfg, cfg.Playback.Toggle)
}

func transportHandler(cfg ServerConfig, cmd func() (playback.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := cmd()
		if err != nil {
			cfg.Logger.Warn("playback command failed", "path", r.URL.Path, "error", err)
			WriteError(w, http.StatusBadGateway, err.Error(), "ENGINE_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, PlaybackToResponse(st))
	}
}

// stepHandler moves by whole frames at the loaded game's frame rate.
func stepHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Frames == 0 {
			WriteError(w, http.StatusBadRequest, "frames must be non-zero", "BAD_REQUEST")
			return
		}

		st := cfg.Playback.Step(req.Frames, cfg.Review.FrameRate(r.Context()))
		WriteJSON(w, http.StatusOK, PlaybackToResponse(st))
	}
}

func playMomentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		m, ok := cfg.Review.Moment(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "moment not found", "NOT_FOUND")
			return
		}

		st, err := cfg.Playback.PlayMoment(m)
		if err != nil {
			cfg.Logger.Warn("play moment failed", "moment_id", id, "error", err)
			WriteError(w, http.StatusBadGateway, err.Error(), "ENGINE_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, PlaybackToResponse(st))
	}
}

// reportPositionHandler takes position reports from the review surface's
// media element. Stale reports are acknowledged but not applied.
func reportPositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReportPositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		pos, ok := positionDuration(req.PositionMs)
		if !ok {
			WriteError(w, http.StatusBadRequest, "position_ms out of range", "BAD_REQUEST")
			return
		}

		applied := cfg.Playback.ReportPosition(req.Generation, pos)
		WriteJSON(w, http.StatusOK, ReportPositionResponse{
			Applied:  applied,
			Playback: PlaybackToResponse(cfg.Playback.State()),
		})
	}
}

// playbackFileHandler streams the video of game_id, or of the loaded game
// when the parameter is absent.
func playbackFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := r.URL.Query().Get("game_id")
		if gameID == "" {
			gameID = cfg.Review.Snapshot().GameID
		}
		if gameID == "" {
			WriteError(w, http.StatusBadRequest, "game_id is required when no game is loaded", "BAD_REQUEST")
			return
		}

		game, err := cfg.Repository.GetGame(r.Context(), gameID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if game == nil {
			WriteError(w, http.StatusNotFound, "game not found", "NOT_FOUND")
			return
		}

		if err := cfg.Media.ServeFile(w, r, game.VideoPath); err != nil {
			if errors.Is(err, playback.ErrNoMedia) {
				WriteError(w, http.StatusNotFound, "media file not available", "NO_MEDIA")
				return
			}
			cfg.Logger.Error("playback error", "error", err, "game_id", gameID)
			WriteError(w, http.StatusInternalServerError, "failed to serve media", "INTERNAL_ERROR")
		}
	}
}

func playbackEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Events == nil {
			WriteError(w, http.StatusServiceUnavailable, "event stream disabled", "UNAVAILABLE")
			return
		}
		cfg.Events.ServeWS(w, r)
	}
}
