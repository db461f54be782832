package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/heimdex/heimdex-review/internal/export"
)

// exportSelectionHandler writes the selected moments, in table order, to the
// export directory. An empty selection is not an error: nothing is written
// and the response status is "skipped".
func exportSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Format) == "" {
			req.Format = string(export.FormatEDL)
		}

		format, err := export.ParseFormat(req.Format)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		batch, ok, err := cfg.Review.ExportSelection(r.Context(), string(format))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if !ok {
			WriteJSON(w, http.StatusOK, ExportResponse{Status: "skipped", Format: string(format)})
			return
		}

		WriteJSON(w, http.StatusOK, ExportResponse{
			Status:      "ok",
			Format:      string(format),
			OutputPath:  batch.Location,
			MomentCount: len(batch.Moments),
			MomentIDs:   momentIDs(batch.Moments),
		})
	}
}
