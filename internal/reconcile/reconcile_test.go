package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/logging"
	"github.com/heimdex/heimdex-review/internal/testsupport"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func seededEngine(t *testing.T) (*Engine, *catalog.SQLiteRepository) {
	t.Helper()
	repo := testsupport.NewRepository(t)

	testsupport.SeedProject(t, repo, "p1")
	testsupport.SeedProject(t, repo, "p2")
	testsupport.SeedGame(t, repo, "p1", "g1", 0)
	testsupport.SeedGame(t, repo, "p1", "g2", time.Hour)
	testsupport.SeedGame(t, repo, "p2", "g9", 0)

	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m1", GameID: "g1", StartMs: 1000, Notes: testsupport.Ptr("weak side open")})
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m2", GameID: "g1", StartMs: 2000})
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m3", GameID: "g2", StartMs: 500, Notes: testsupport.Ptr("reset")})
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m9", GameID: "g9", StartMs: 0, Notes: testsupport.Ptr("other project")})

	testsupport.SeedAnnotation(t, repo, catalog.Annotation{
		ID: "n1", MomentID: "m2", GameID: "g1", Content: "native",
		Attachments: []catalog.Attachment{{Kind: catalog.KindMoment, TargetID: "m2"}},
	})

	// pl2 never appears in p1; its note is still surfaced.
	testsupport.SeedPlayer(t, repo, "pl1", "Avery", testsupport.Ptr("communicates well"))
	testsupport.SeedPlayer(t, repo, "pl2", "Blake", testsupport.Ptr("bench only"))
	testsupport.SeedPlayer(t, repo, "pl3", "Casey", nil)

	engine := NewEngine(repo, logging.Discard()).WithClock(func() time.Time { return fixedNow })
	return engine, repo
}

func TestReconcile_GroupsInOrder(t *testing.T) {
	engine, _ := seededEngine(t)

	got := engine.Reconcile(context.Background(), "p1")

	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{
		"n1",
		"moment-note:m1",
		"moment-note:m3",
		"player-note:pl1",
		"player-note:pl2",
	}, ids)
}

func TestReconcile_Idempotent(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	first := engine.Reconcile(ctx, "p1")
	second := engine.Reconcile(ctx, "p1")

	assert.Equal(t, first, second)
}

func TestReconcile_MomentNoteCoverage(t *testing.T) {
	engine, repo := seededEngine(t)
	ctx := context.Background()

	got := engine.Reconcile(ctx, "p1")
	notes, err := repo.FetchMomentsWithInlineNotes(ctx, "p1")
	require.NoError(t, err)

	for _, mn := range notes {
		matches := 0
		for _, a := range got {
			if len(a.Attachments) == 1 && a.Attachments[0] == (catalog.Attachment{Kind: catalog.KindMoment, TargetID: mn.Moment.ID}) &&
				a.Origin == catalog.MomentOrigin(mn.Moment.ID) {
				matches++
				assert.Equal(t, mn.Moment.CreatedAt, a.CreatedAt)
				assert.Equal(t, mn.Moment.GameID, a.GameID)
				assert.Equal(t, mn.Moment.ID, a.MomentID)
				assert.Equal(t, mn.Text, a.Content)
			}
		}
		assert.Equal(t, 1, matches, "moment %s", mn.Moment.ID)
	}
}

func TestReconcile_PlayerNotesRegardlessOfProject(t *testing.T) {
	engine, _ := seededEngine(t)

	got := engine.Reconcile(context.Background(), "p1")

	byID := map[string]catalog.Annotation{}
	for _, a := range got {
		byID[a.ID] = a
	}
	for _, playerID := range []string{"pl1", "pl2"} {
		a, ok := byID["player-note:"+playerID]
		require.True(t, ok, "missing note for %s", playerID)
		assert.Equal(t, []catalog.Attachment{{Kind: catalog.KindPlayer, TargetID: playerID}}, a.Attachments)
		require.NotNil(t, a.PlayerID)
		assert.Equal(t, playerID, *a.PlayerID)
		assert.Equal(t, "g1", a.GameID, "fallback scope is the first game")
		assert.Equal(t, fixedNow, a.CreatedAt)
		assert.Empty(t, a.MomentID)
	}
	_, ok := byID["player-note:pl3"]
	assert.False(t, ok, "player without a note must not be synthesized")
}

func TestReconcile_NoProject(t *testing.T) {
	engine, _ := seededEngine(t)

	got := engine.Reconcile(context.Background(), "")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type failingSource struct {
	native []catalog.Annotation
}

func (f failingSource) FetchNativeAnnotations(context.Context, string) ([]catalog.Annotation, error) {
	return f.native, nil
}

func (f failingSource) FetchMomentsWithInlineNotes(context.Context, string) ([]catalog.MomentNote, error) {
	return nil, errors.New("disk I/O error")
}

func (f failingSource) FetchPlayersWithInlineNotes(context.Context) ([]catalog.PlayerNote, error) {
	return []catalog.PlayerNote{{PlayerID: "pl1", Text: "x"}}, nil
}

func (f failingSource) FetchFirstGameID(context.Context, string) (string, bool, error) {
	return "", false, errors.New("locked")
}

func TestReconcile_DegradesOnFetchFailure(t *testing.T) {
	src := failingSource{native: []catalog.Annotation{{ID: "n1", Content: "kept", Origin: catalog.NativeOrigin("n1")}}}
	engine := NewEngine(src, logging.Discard()).WithClock(func() time.Time { return fixedNow })

	got := engine.Reconcile(context.Background(), "p1")

	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0].ID)
	assert.Equal(t, "player-note:pl1", got[1].ID)
	assert.Empty(t, got[1].GameID)
}
