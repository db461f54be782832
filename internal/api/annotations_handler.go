package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/query"
	"github.com/heimdex/heimdex-review/internal/review"
)

// listAnnotationsHandler serves the annotation table. Query parameters kind,
// moment_id and q narrow it; all are optional and combine with AND.
func listAnnotationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f query.Filter
		if raw := q.Get("kind"); raw != "" {
			kind, err := catalog.ParseAttachmentKind(raw)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			f.Kind = kind
		}
		f.MomentID = q.Get("moment_id")
		f.Text = q.Get("q")

		rows := cfg.Review.Annotations(f)
		if rows == nil {
			rows = []review.AnnotationRow{}
		}
		WriteJSON(w, http.StatusOK, AnnotationsResponse{Filter: f, Annotations: rows})
	}
}

func createAnnotationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req review.NewAnnotation
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		a, err := cfg.Review.CreateAnnotation(r.Context(), req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, a)
	}
}

// updateAnnotationHandler replaces annotation text. Ids of synthesized
// annotations write through to the owning moment or player note.
func updateAnnotationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req UpdateAnnotationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Content == nil {
			WriteError(w, http.StatusBadRequest, "content is required", "BAD_REQUEST")
			return
		}

		if err := cfg.Review.UpdateAnnotation(r.Context(), id, *req.Content); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		if a, ok := cfg.Review.Snapshot().Annotation(id); ok {
			WriteJSON(w, http.StatusOK, a)
			return
		}
		// a cleared inline note no longer yields an annotation
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteAnnotationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Review.DeleteAnnotation(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
