// Package reconcile merges the three places annotation text lives (the
// annotation table, moment inline notes, player inline notes) into one
// ordered collection of catalog.Annotation values.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

// Source is the subset of catalog.Store the engine reads from.
type Source interface {
	FetchNativeAnnotations(ctx context.Context, projectID string) ([]catalog.Annotation, error)
	FetchMomentsWithInlineNotes(ctx context.Context, projectID string) ([]catalog.MomentNote, error)
	FetchPlayersWithInlineNotes(ctx context.Context) ([]catalog.PlayerNote, error)
	FetchFirstGameID(ctx context.Context, projectID string) (string, bool, error)
}

type Engine struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(source Source, logger *slog.Logger) *Engine {
	return &Engine{source: source, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used to stamp player notes.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Reconcile returns native annotations, then one synthesized annotation per
// moment inline note, then one per player inline note. It never fails: a
// group whose fetch errors is logged and left out.
func (e *Engine) Reconcile(ctx context.Context, projectID string) []catalog.Annotation {
	if projectID == "" {
		return []catalog.Annotation{}
	}

	native, err := e.source.FetchNativeAnnotations(ctx, projectID)
	if err != nil {
		e.warn("failed to fetch native annotations", projectID, err)
		native = nil
	}

	momentNotes, err := e.source.FetchMomentsWithInlineNotes(ctx, projectID)
	if err != nil {
		e.warn("failed to fetch moment notes", projectID, err)
		momentNotes = nil
	}

	playerNotes, err := e.source.FetchPlayersWithInlineNotes(ctx)
	if err != nil {
		e.warn("failed to fetch player notes", projectID, err)
		playerNotes = nil
	}

	out := make([]catalog.Annotation, 0, len(native)+len(momentNotes)+len(playerNotes))
	out = append(out, native...)
	for _, mn := range momentNotes {
		out = append(out, FromMomentNote(mn))
	}

	if len(playerNotes) > 0 {
		gameID, _, err := e.source.FetchFirstGameID(ctx, projectID)
		if err != nil {
			e.warn("failed to resolve fallback game", projectID, err)
		}
		now := e.now()
		for _, pn := range playerNotes {
			out = append(out, FromPlayerNote(pn, gameID, now))
		}
	}

	if e.logger != nil {
		e.logger.Debug("reconciled annotations",
			"project_id", projectID,
			"native", len(native),
			"moment_notes", len(momentNotes),
			"player_notes", len(playerNotes),
		)
	}
	return out
}

func (e *Engine) warn(msg, projectID string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, "project_id", projectID, "error", err)
	}
}

// FromMomentNote synthesizes the annotation backing a moment's inline note.
// It keeps the moment's own timestamps.
func FromMomentNote(mn catalog.MomentNote) catalog.Annotation {
	origin := catalog.MomentOrigin(mn.Moment.ID)
	modified := mn.Moment.UpdatedAt
	return catalog.Annotation{
		ID:          origin.AnnotationID(),
		MomentID:    mn.Moment.ID,
		GameID:      mn.Moment.GameID,
		Content:     mn.Text,
		Attachments: []catalog.Attachment{{Kind: catalog.KindMoment, TargetID: mn.Moment.ID}},
		CreatedAt:   mn.Moment.CreatedAt,
		ModifiedAt:  &modified,
		Origin:      origin,
	}
}

// FromPlayerNote synthesizes the annotation backing a player's inline note.
// Players carry no creation time, so createdAt is supplied by the caller.
func FromPlayerNote(pn catalog.PlayerNote, fallbackGameID string, createdAt time.Time) catalog.Annotation {
	origin := catalog.PlayerOrigin(pn.PlayerID)
	playerID := pn.PlayerID
	return catalog.Annotation{
		ID:          origin.AnnotationID(),
		GameID:      fallbackGameID,
		Content:     pn.Text,
		Attachments: []catalog.Attachment{{Kind: catalog.KindPlayer, TargetID: pn.PlayerID}},
		PlayerID:    &playerID,
		CreatedAt:   createdAt,
		Origin:      origin,
	}
}
