package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/query"
	"github.com/heimdex/heimdex-review/internal/review"
)

func listMomentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeMoments(w, cfg)
	}
}

func writeMoments(w http.ResponseWriter, cfg ServerConfig) {
	sort := cfg.Review.Sort()
	rows := cfg.Review.Moments()
	if rows == nil {
		rows = []review.MomentRow{}
	}
	WriteJSON(w, http.StatusOK, MomentsResponse{
		Sort:    SortResponse{Key: sort.Key, Descending: sort.Descending},
		Moments: rows,
	})
}

func getMomentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		m, ok := cfg.Review.Moment(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "moment not found", "NOT_FOUND")
			return
		}
		snap := cfg.Review.Snapshot()
		WriteJSON(w, http.StatusOK, review.MomentRow{
			Moment:          m,
			AnnotationCount: snap.AnnotationCount(id),
			Selected:        cfg.Review.Selection().IsSelected(id),
		})
	}
}

// sortMomentsHandler applies a header click: the active key flips direction,
// a new key sorts ascending.
func sortMomentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SortRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		key, err := query.ParseSortKey(req.Key)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		cfg.Review.SelectSort(key)
		writeMoments(w, cfg)
	}
}

func getSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSelection(w, cfg)
	}
}

func writeSelection(w http.ResponseWriter, cfg ServerConfig) {
	ids := cfg.Review.Selection().Selected()
	WriteJSON(w, http.StatusOK, SelectionResponse{Selected: ids, Count: len(ids)})
}

func toggleSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.MomentID == "" {
			WriteError(w, http.StatusBadRequest, "moment_id is required", "BAD_REQUEST")
			return
		}

		sel := cfg.Review.Selection()
		selected, err := sel.Toggle(req.MomentID)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ToggleSelectionResponse{
			MomentID: req.MomentID,
			Selected: selected,
			Count:    sel.Len(),
		})
	}
}

func selectAllHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Review.Selection().SelectAll()
		writeSelection(w, cfg)
	}
}

func clearSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Review.Selection().Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func momentIDs(moments []catalog.Moment) []string {
	ids := make([]string, len(moments))
	for i, m := range moments {
		ids[i] = m.ID
	}
	return ids
}
