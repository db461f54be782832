package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/export"
	"github.com/heimdex/heimdex-review/internal/media"
	"github.com/heimdex/heimdex-review/internal/notify"
	"github.com/heimdex/heimdex-review/internal/playback"
	"github.com/heimdex/heimdex-review/internal/review"
	"github.com/heimdex/heimdex-review/internal/selection"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	// Media elements and websocket clients cannot send a bearer token, so
	// these routes are limited to loopback callers instead.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())

		r.Get("/playback/file", playbackFileHandler(cfg))
		r.Head("/playback/file", playbackFileHandler(cfg))
		r.Get("/playback/events", playbackEventsHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/reload", reloadHandler(cfg))
		r.Post("/notify/tag-created", tagCreatedHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Get("/project", sessionHandler(cfg))
		r.Put("/project", openProjectHandler(cfg))
		r.Delete("/project", closeProjectHandler(cfg))
		r.Get("/games", listGamesHandler(cfg))
		r.Put("/game", selectGameHandler(cfg))
		r.Get("/games/{id}/media", mediaInfoHandler(cfg))
		r.Get("/players", listPlayersHandler(cfg))

		r.Get("/annotations", listAnnotationsHandler(cfg))
		r.Post("/annotations", createAnnotationHandler(cfg))
		r.Put("/annotations/{id}", updateAnnotationHandler(cfg))
		r.Delete("/annotations/{id}", deleteAnnotationHandler(cfg))

		r.Get("/moments", listMomentsHandler(cfg))
		r.Get("/moments/{id}", getMomentHandler(cfg))
		r.Post("/moments/sort", sortMomentsHandler(cfg))

		r.Get("/selection", getSelectionHandler(cfg))
		r.Post("/selection/toggle", toggleSelectionHandler(cfg))
		r.Post("/selection/all", selectAllHandler(cfg))
		r.Delete("/selection", clearSelectionHandler(cfg))
		r.Post("/export", exportSelectionHandler(cfg))

		r.Get("/playback", playbackStateHandler(cfg))
		r.Post("/playback/seek", seekHandler(cfg))
		r.Post("/playback/play", playHandler(cfg))
		r.Post("/playback/pause", pauseHandler(cfg))
		r.Post("/playback/toggle", togglePlaybackHandler(cfg))
		r.Post("/playback/step", stepHandler(cfg))
		r.Post("/playback/position", reportPositionHandler(cfg))
		r.Post("/playback/moments/{id}", playMomentHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Review.Snapshot()

		resp := StatusResponse{
			ProjectID:       snap.ProjectID,
			GameID:          snap.GameID,
			MomentsCount:    snap.MomentCount(),
			AnnotationCount: len(snap.Annotations()),
			KindCounts:      make(map[string]int, len(catalog.AttachmentKinds)),
			SelectedCount:   cfg.Review.Selection().Len(),
			Playback:        PlaybackToResponse(cfg.Playback.State()),
		}
		for _, kind := range catalog.AttachmentKinds {
			resp.KindCounts[string(kind)] = snap.KindCount(kind)
		}
		if !snap.BuiltAt.IsZero() {
			resp.LoadedAt = snap.BuiltAt.Format(time.RFC3339)
		}
		if cfg.Notifier != nil {
			stats := cfg.Notifier.Stats()
			resp.Notify = &stats
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func reloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := cfg.Review.Reload(r.Context()); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		statusHandler(cfg)(w, r)
	}
}

// tagCreatedHandler accepts the "new tag" signal. With a debouncer the reload
// is deferred and the call returns 202; without one it reloads inline.
func tagCreatedHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev notify.TagEvent
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}
		if ev.Source == "" {
			ev.Source = "http"
		}

		if cfg.Notifier == nil {
			if _, err := cfg.Review.Reload(r.Context()); err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
			WriteJSON(w, http.StatusOK, TagCreatedResponse{Accepted: true})
			return
		}

		cfg.Notifier.TagCreated(ev)
		stats := cfg.Notifier.Stats()
		WriteJSON(w, http.StatusAccepted, TagCreatedResponse{Accepted: true, Stats: &stats})
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Repository.ListProjects(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}

		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			resp.Projects[i] = ProjectToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func sessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSession(w, r, cfg)
	}
}

func writeSession(w http.ResponseWriter, r *http.Request, cfg ServerConfig) {
	ctx := r.Context()
	var resp SessionResponse

	p, err := cfg.Review.Project(ctx)
	if err != nil {
		writeServiceError(w, cfg.Logger, err)
		return
	}
	if p != nil {
		pr := ProjectToResponse(p)
		resp.Project = &pr
	}

	g, err := cfg.Review.Game(ctx)
	if err != nil {
		writeServiceError(w, cfg.Logger, err)
		return
	}
	if g != nil {
		gr := GameToResponse(g)
		resp.Game = &gr
	}

	WriteJSON(w, http.StatusOK, resp)
}

func openProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ProjectID == "" {
			WriteError(w, http.StatusBadRequest, "project_id is required", "BAD_REQUEST")
			return
		}

		if _, err := cfg.Review.OpenProject(r.Context(), req.ProjectID); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		writeSession(w, r, cfg)
	}
}

func closeProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := cfg.Review.CloseProject(r.Context()); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listGamesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.URL.Query().Get("project_id")
		if projectID == "" {
			projectID = cfg.Review.Snapshot().ProjectID
		}
		if projectID == "" {
			writeServiceError(w, cfg.Logger, review.ErrNoProject)
			return
		}

		games, err := cfg.Repository.ListGames(r.Context(), projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list games", "INTERNAL_ERROR")
			return
		}

		resp := GamesResponse{Games: make([]GameResponse, len(games))}
		for i, g := range games {
			resp.Games[i] = GameToResponse(g)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// listPlayersHandler returns the roster. Players are shared by all projects.
func listPlayersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		players, err := cfg.Repository.ListPlayers(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list players", "INTERNAL_ERROR")
			return
		}
		if players == nil {
			players = []*catalog.Player{}
		}
		WriteJSON(w, http.StatusOK, PlayersResponse{Players: players})
	}
}

func selectGameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.GameID == "" {
			WriteError(w, http.StatusBadRequest, "game_id is required", "BAD_REQUEST")
			return
		}

		if _, err := cfg.Review.SelectGame(r.Context(), req.GameID); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		writeSession(w, r, cfg)
	}
}

func mediaInfoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := cfg.Review.MediaInfo(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

// writeServiceError maps domain errors onto status codes. Anything unmapped
// is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, selection.ErrUnknownMoment):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, review.ErrNoProject):
		WriteError(w, http.StatusConflict, err.Error(), "NO_PROJECT")
	case errors.Is(err, review.ErrNoGame):
		WriteError(w, http.StatusConflict, err.Error(), "NO_GAME")
	case errors.Is(err, review.ErrProjectLocked):
		WriteError(w, http.StatusConflict, err.Error(), "PROJECT_LOCKED")
	case errors.Is(err, review.ErrNoMedia), errors.Is(err, playback.ErrNoMedia):
		WriteError(w, http.StatusNotFound, err.Error(), "NO_MEDIA")
	case errors.Is(err, review.ErrInvalidContent), errors.Is(err, review.ErrInvalidKind),
		errors.Is(err, export.ErrUnknownFormat):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, media.ErrNoVideoStream):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NO_VIDEO_STREAM")
	case errors.Is(err, selection.ErrNoExporter):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "EXPORT_UNAVAILABLE")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
