// Package review is the session layer of the agent. It loads the open project
// into an index snapshot, serves filtered and sorted views of it, and routes
// annotation writes to wherever the text is stored.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/export"
	"github.com/heimdex/heimdex-review/internal/index"
	"github.com/heimdex/heimdex-review/internal/logging"
	"github.com/heimdex/heimdex-review/internal/media"
	"github.com/heimdex/heimdex-review/internal/query"
	"github.com/heimdex/heimdex-review/internal/reconcile"
	"github.com/heimdex/heimdex-review/internal/selection"
)

var (
	ErrNoProject      = errors.New("no project open")
	ErrNoGame         = errors.New("no game loaded")
	ErrNoMedia        = errors.New("game has no media file")
	ErrProjectLocked  = errors.New("project context cannot be changed")
	ErrInvalidContent = errors.New("annotation content is required")
	ErrInvalidKind    = errors.New("invalid attachment kind")
)

// ProjectSwitcher is a project context that can also change the open project.
type ProjectSwitcher interface {
	catalog.ProjectContext
	Open(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

type Options struct {
	Repository catalog.Repository
	Projects   catalog.ProjectContext
	// Exporter is optional; without it exports fail with
	// selection.ErrNoExporter.
	Exporter *export.FileExporter
	// Prober is optional; without it the configured frame rate is used.
	Prober    media.Prober
	FrameRate float64
	Logger    *slog.Logger
	Now       func() time.Time
}

type Service struct {
	repo       catalog.Repository
	projects   catalog.ProjectContext
	reconciler *reconcile.Engine
	holder     *index.Holder
	selection  *selection.Coordinator
	exporter   *export.FileExporter
	prober     media.Prober
	frameRate  float64
	logger     *slog.Logger
	now        func() time.Time

	reloadMu sync.Mutex

	mu        sync.Mutex
	sort      query.MomentSort
	gameID    string
	listeners []func(*index.Snapshot)
}

func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	frameRate := opts.FrameRate
	if frameRate <= 0 {
		frameRate = export.DefaultFrameRate
	}

	s := &Service{
		repo:       opts.Repository,
		projects:   opts.Projects,
		reconciler: reconcile.NewEngine(opts.Repository, logger).WithClock(now),
		holder:     index.NewHolder(),
		exporter:   opts.Exporter,
		prober:     opts.Prober,
		frameRate:  frameRate,
		logger:     logger,
		now:        now,
		sort:       query.DefaultMomentSort(),
	}

	var exp selection.Exporter
	if opts.Exporter != nil {
		exp = batchExporter{s}
	}
	s.selection = selection.NewCoordinator(s, exp, logger)
	return s
}

// OnReload registers fn to run after every published snapshot.
func (s *Service) OnReload(fn func(*index.Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Service) Snapshot() *index.Snapshot {
	return s.holder.Load()
}

func (s *Service) Selection() *selection.Coordinator {
	return s.selection
}

// Reload rebuilds the snapshot from the store and publishes it in one swap.
// With no project open an empty snapshot is published. A failure to read the
// game's moments keeps the previous snapshot.
func (s *Service) Reload(ctx context.Context) (*index.Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := s.now()
	projectID, ok := s.projects.CurrentProjectID(ctx)
	if !ok {
		snap := index.Empty()
		s.publish(snap)
		s.logger.Info("review state cleared, no project open")
		return snap, nil
	}

	log := logging.WithProjectID(s.logger, projectID)
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return s.holder.Load(), fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		snap := index.Empty()
		s.publish(snap)
		log.Warn("review state cleared, project does not exist")
		return snap, nil
	}

	annotations := s.reconciler.Reconcile(ctx, projectID)

	gameID, err := s.resolveGame(ctx, projectID)
	if err != nil {
		return s.holder.Load(), fmt.Errorf("resolve game: %w", err)
	}

	moments := []catalog.Moment{}
	if gameID != "" {
		moments, err = s.repo.FetchMoments(ctx, gameID)
		if err != nil {
			log.Error("failed to load moments", "game_id", gameID, "error", err)
			return s.holder.Load(), fmt.Errorf("load moments: %w", err)
		}
	}

	snap := index.Build(projectID, gameID, moments, annotations)
	s.publish(snap)

	log.Info("review state reloaded",
		"game_id", gameID,
		"moments", snap.MomentCount(),
		"annotations", len(annotations),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return snap, nil
}

func (s *Service) publish(snap *index.Snapshot) {
	s.holder.Publish(snap)

	moments := snap.Moments()
	ids := make([]string, len(moments))
	for i, m := range moments {
		ids[i] = m.ID
	}
	if dropped := s.selection.Retain(ids); dropped > 0 {
		s.logger.Debug("selection pruned after reload", "dropped", dropped)
	}

	s.mu.Lock()
	listeners := append([]func(*index.Snapshot){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// resolveGame picks the explicitly selected game when it belongs to the
// project, otherwise the project's first game. "" means the project has no
// games.
func (s *Service) resolveGame(ctx context.Context, projectID string) (string, error) {
	s.mu.Lock()
	chosen := s.gameID
	s.mu.Unlock()

	if chosen != "" {
		g, err := s.repo.GetGame(ctx, chosen)
		if err != nil {
			return "", err
		}
		if g != nil && g.ProjectID == projectID {
			return g.ID, nil
		}
	}

	id, _, err := s.repo.FetchFirstGameID(ctx, projectID)
	return id, err
}

// SelectGame switches the loaded game within the open project and reloads.
func (s *Service) SelectGame(ctx context.Context, gameID string) (*index.Snapshot, error) {
	projectID, ok := s.projects.CurrentProjectID(ctx)
	if !ok {
		return nil, ErrNoProject
	}
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil || g.ProjectID != projectID {
		return nil, fmt.Errorf("game %s: %w", gameID, catalog.ErrNotFound)
	}

	s.mu.Lock()
	s.gameID = gameID
	s.mu.Unlock()
	return s.Reload(ctx)
}

// OpenProject makes id the current project, clears the selection and reloads.
func (s *Service) OpenProject(ctx context.Context, id string) (*index.Snapshot, error) {
	sw, ok := s.projects.(ProjectSwitcher)
	if !ok {
		return nil, ErrProjectLocked
	}
	if err := sw.Open(ctx, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.gameID = ""
	s.mu.Unlock()
	s.selection.Clear()
	return s.Reload(ctx)
}

func (s *Service) CloseProject(ctx context.Context) (*index.Snapshot, error) {
	sw, ok := s.projects.(ProjectSwitcher)
	if !ok {
		return nil, ErrProjectLocked
	}
	if err := sw.Close(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.gameID = ""
	s.mu.Unlock()
	s.selection.Clear()
	return s.Reload(ctx)
}

// Project returns the open project, or nil when none is open.
func (s *Service) Project(ctx context.Context) (*catalog.Project, error) {
	id, ok := s.projects.CurrentProjectID(ctx)
	if !ok {
		return nil, nil
	}
	return s.repo.GetProject(ctx, id)
}

// Game returns the loaded game, or nil when none is loaded.
func (s *Service) Game(ctx context.Context) (*catalog.Game, error) {
	gameID := s.holder.Load().GameID
	if gameID == "" {
		return nil, nil
	}
	return s.repo.GetGame(ctx, gameID)
}

type AnnotationRow struct {
	catalog.Annotation
	MomentLabel string `json:"moment_label,omitempty"`
}

// Annotations returns the reconciled annotations that pass f, joined with the
// label of the moment they belong to.
func (s *Service) Annotations(f query.Filter) []AnnotationRow {
	snap := s.holder.Load()
	filtered := query.FilterAnnotations(snap.Annotations(), f)

	rows := make([]AnnotationRow, len(filtered))
	for i, a := range filtered {
		rows[i] = AnnotationRow{Annotation: a}
		if a.MomentID != "" {
			rows[i].MomentLabel = snap.MomentLabel(a.MomentID)
		}
	}
	return rows
}

type MomentRow struct {
	catalog.Moment
	AnnotationCount int  `json:"annotation_count"`
	Selected        bool `json:"selected"`
}

// Moments returns the loaded moments in the current sort order.
func (s *Service) Moments() []MomentRow {
	snap := s.holder.Load()
	sorted := query.SortMoments(snap.Moments(), s.Sort())

	rows := make([]MomentRow, len(sorted))
	for i, m := range sorted {
		rows[i] = MomentRow{
			Moment:          m,
			AnnotationCount: snap.AnnotationCount(m.ID),
			Selected:        s.selection.IsSelected(m.ID),
		}
	}
	return rows
}

// OrderedMoments implements selection.MomentSource.
func (s *Service) OrderedMoments() []catalog.Moment {
	return query.SortMoments(s.holder.Load().Moments(), s.Sort())
}

// Moment implements selection.MomentSource.
func (s *Service) Moment(id string) (catalog.Moment, bool) {
	return s.holder.Load().Moment(id)
}

func (s *Service) Sort() query.MomentSort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sort
}

// SelectSort applies the moment table's header-click rule for key.
func (s *Service) SelectSort(key query.SortKey) query.MomentSort {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = s.sort.Select(key)
	return s.sort
}

type NewAnnotation struct {
	MomentID    string               `json:"moment_id"`
	GameID      string               `json:"game_id"`
	Content     string               `json:"content"`
	Attachments []catalog.Attachment `json:"attachments"`
	PlayerID    *string              `json:"player_id"`
}

// CreateAnnotation stores a native annotation and reloads. The game defaults
// to the moment's game, then to the loaded game.
func (s *Service) CreateAnnotation(ctx context.Context, in NewAnnotation) (catalog.Annotation, error) {
	if strings.TrimSpace(in.Content) == "" {
		return catalog.Annotation{}, ErrInvalidContent
	}
	for _, att := range in.Attachments {
		if _, err := catalog.ParseAttachmentKind(string(att.Kind)); err != nil {
			return catalog.Annotation{}, fmt.Errorf("%w: %v", ErrInvalidKind, err)
		}
	}

	gameID := in.GameID
	if gameID == "" && in.MomentID != "" {
		m, err := s.repo.GetMoment(ctx, in.MomentID)
		if err != nil {
			return catalog.Annotation{}, err
		}
		if m == nil {
			return catalog.Annotation{}, fmt.Errorf("moment %s: %w", in.MomentID, catalog.ErrNotFound)
		}
		gameID = m.GameID
	}
	if gameID == "" {
		gameID = s.holder.Load().GameID
	}
	if gameID == "" {
		return catalog.Annotation{}, ErrNoGame
	}

	attachments := in.Attachments
	if attachments == nil {
		attachments = []catalog.Attachment{}
	}
	a := catalog.Annotation{
		ID:          catalog.NewID(),
		MomentID:    in.MomentID,
		GameID:      gameID,
		Content:     in.Content,
		Attachments: attachments,
		PlayerID:    in.PlayerID,
		CreatedAt:   s.now().UTC(),
	}
	a.Origin = catalog.NativeOrigin(a.ID)

	if err := s.repo.CreateAnnotation(ctx, &a); err != nil {
		return catalog.Annotation{}, fmt.Errorf("create annotation: %w", err)
	}
	s.logger.Info("annotation created", "annotation_id", a.ID, "game_id", gameID)

	s.reloadAfterWrite(ctx)
	return a, nil
}

// UpdateAnnotation replaces the text of an annotation. Synthesized
// annotations write through to the owning moment or player note, and blank
// text clears that note. Native annotations reject blank text. On failure
// nothing in memory changes.
func (s *Service) UpdateAnnotation(ctx context.Context, id, text string) error {
	origin := catalog.ParseOrigin(id)

	var ok bool
	var err error
	switch origin.Kind {
	case catalog.OriginMoment:
		ok, err = s.repo.UpdateMomentNote(ctx, origin.SourceID, noteValue(text))
	case catalog.OriginPlayer:
		ok, err = s.repo.UpdatePlayerNote(ctx, origin.SourceID, noteValue(text))
	default:
		if strings.TrimSpace(text) == "" {
			return ErrInvalidContent
		}
		ok, err = s.repo.UpdateAnnotationContent(ctx, id, text)
	}
	if err != nil {
		return fmt.Errorf("update annotation %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("annotation %s: %w", id, catalog.ErrNotFound)
	}

	s.logger.Info("annotation updated", "annotation_id", id, "origin", string(origin.Kind))
	s.reloadAfterWrite(ctx)
	return nil
}

// DeleteAnnotation removes an annotation. For synthesized annotations the
// owning moment or player note is cleared.
func (s *Service) DeleteAnnotation(ctx context.Context, id string) error {
	origin := catalog.ParseOrigin(id)

	var ok bool
	var err error
	switch origin.Kind {
	case catalog.OriginMoment:
		ok, err = s.repo.UpdateMomentNote(ctx, origin.SourceID, nil)
	case catalog.OriginPlayer:
		ok, err = s.repo.UpdatePlayerNote(ctx, origin.SourceID, nil)
	default:
		ok, err = s.repo.DeleteAnnotation(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("delete annotation %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("annotation %s: %w", id, catalog.ErrNotFound)
	}

	s.logger.Info("annotation deleted", "annotation_id", id, "origin", string(origin.Kind))
	s.reloadAfterWrite(ctx)
	return nil
}

func (s *Service) reloadAfterWrite(ctx context.Context) {
	if _, err := s.Reload(ctx); err != nil {
		s.logger.Warn("reload after write failed", "error", err)
	}
}

func noteValue(text string) *string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &text
}

// MediaInfo probes the video of a game; "" means the loaded game.
func (s *Service) MediaInfo(ctx context.Context, gameID string) (*media.Info, error) {
	if gameID == "" {
		gameID = s.holder.Load().GameID
	}
	if gameID == "" {
		return nil, ErrNoGame
	}
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("game %s: %w", gameID, catalog.ErrNotFound)
	}
	if g.VideoPath == "" {
		return nil, ErrNoMedia
	}
	if s.prober == nil {
		return &media.Info{Path: g.VideoPath, FrameRate: s.frameRate}, nil
	}
	return s.prober.Probe(ctx, g.VideoPath)
}

// FrameRate is the loaded game's probed frame rate, or the configured
// default when it cannot be probed.
func (s *Service) FrameRate(ctx context.Context) float64 {
	info, err := s.MediaInfo(ctx, "")
	if err != nil || info.FrameRate <= 0 {
		return s.frameRate
	}
	return info.FrameRate
}

// ExportSelection exports the selected moments. ok is false when nothing is
// selected.
func (s *Service) ExportSelection(ctx context.Context, format string) (selection.Batch, bool, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return selection.Batch{}, false, err
	}
	return s.selection.ExportSelection(ctx, string(f))
}

// batchExporter binds a selection batch to the session's project, game and
// media before writing it.
type batchExporter struct {
	s *Service
}

func (e batchExporter) Export(ctx context.Context, batch selection.Batch) (string, error) {
	format, err := export.ParseFormat(batch.Format)
	if err != nil {
		return "", err
	}

	req := export.Request{
		Format:    format,
		FrameRate: e.s.FrameRate(ctx),
		Moments:   batch.Moments,
	}
	if p, err := e.s.Project(ctx); err == nil && p != nil {
		req.Title = p.Name
	}
	if g, err := e.s.Game(ctx); err == nil && g != nil {
		req.MediaPath = g.VideoPath
		if req.Title == "" {
			req.Title = g.Title
		} else {
			req.Title += " - " + g.Title
		}
	}

	res, err := e.s.exporter.Write(ctx, req)
	if err != nil {
		return "", err
	}
	return res.OutputPath, nil
}
