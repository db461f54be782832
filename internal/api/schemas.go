package api

import (
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/notify"
	"github.com/heimdex/heimdex-review/internal/playback"
	"github.com/heimdex/heimdex-review/internal/query"
	"github.com/heimdex/heimdex-review/internal/review"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	ProjectID       string           `json:"project_id,omitempty"`
	GameID          string           `json:"game_id,omitempty"`
	MomentsCount    int              `json:"moments_count"`
	AnnotationCount int              `json:"annotations_count"`
	KindCounts      map[string]int   `json:"kind_counts"`
	SelectedCount   int              `json:"selected_count"`
	LoadedAt        string           `json:"loaded_at,omitempty"`
	Playback        PlaybackResponse `json:"playback"`
	Notify          *notify.Stats    `json:"notify,omitempty"`
}

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type OpenProjectRequest struct {
	ProjectID string `json:"project_id"`
}

type SessionResponse struct {
	Project *ProjectResponse `json:"project"`
	Game    *GameResponse    `json:"game"`
}

type GameResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	HasMedia  bool   `json:"has_media"`
	CreatedAt string `json:"created_at"`
}

type GamesResponse struct {
	Games []GameResponse `json:"games"`
}

type PlayersResponse struct {
	Players []*catalog.Player `json:"players"`
}

type SelectGameRequest struct {
	GameID string `json:"game_id"`
}

type AnnotationsResponse struct {
	Filter      query.Filter           `json:"filter"`
	Annotations []review.AnnotationRow `json:"annotations"`
}

type UpdateAnnotationRequest struct {
	Content *string `json:"content"`
}

type SortResponse struct {
	Key        query.SortKey `json:"key"`
	Descending bool          `json:"descending"`
}

type MomentsResponse struct {
	Sort    SortResponse       `json:"sort"`
	Moments []review.MomentRow `json:"moments"`
}

type SortRequest struct {
	Key string `json:"key"`
}

type SelectionRequest struct {
	MomentID string `json:"moment_id"`
}

type SelectionResponse struct {
	Selected []string `json:"selected"`
	Count    int      `json:"count"`
}

type ToggleSelectionResponse struct {
	MomentID string `json:"moment_id"`
	Selected bool   `json:"selected"`
	Count    int    `json:"count"`
}

type ExportRequest struct {
	Format string `json:"format"`
}

type ExportResponse struct {
	Status      string   `json:"status"`
	Format      string   `json:"format"`
	OutputPath  string   `json:"output_path,omitempty"`
	MomentCount int      `json:"moment_count"`
	MomentIDs   []string `json:"moment_ids,omitempty"`
}

type PlaybackResponse struct {
	Status     playback.Status `json:"status"`
	PositionMs int64           `json:"position_ms"`
	Generation uint64          `json:"generation"`
	Seeking    bool            `json:"seeking"`
}

type SeekRequest struct {
	PositionMs *int64 `json:"position_ms"`
}

type ReportPositionRequest struct {
	Generation uint64 `json:"generation"`
	PositionMs int64  `json:"position_ms"`
}

type ReportPositionResponse struct {
	Applied  bool             `json:"applied"`
	Playback PlaybackResponse `json:"playback"`
}

type StepRequest struct {
	Frames int `json:"frames"`
}

type TagCreatedResponse struct {
	Accepted bool          `json:"accepted"`
	Stats    *notify.Stats `json:"stats,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *catalog.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func GameToResponse(g *catalog.Game) GameResponse {
	return GameResponse{
		ID:        g.ID,
		ProjectID: g.ProjectID,
		Title:     g.Title,
		HasMedia:  g.VideoPath != "",
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	}
}

func PlaybackToResponse(s playback.State) PlaybackResponse {
	return PlaybackResponse{
		Status:     s.Status,
		PositionMs: s.PositionMs(),
		Generation: s.Generation,
		Seeking:    s.Seeking,
	}
}
