package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/testsupport"
)

func TestRepository_EmptyReads(t *testing.T) {
	repo := testsupport.NewRepository(t)
	ctx := context.Background()

	native, err := repo.FetchNativeAnnotations(ctx, "missing")
	if err != nil {
		t.Fatalf("FetchNativeAnnotations() error = %v", err)
	}
	if native == nil || len(native) != 0 {
		t.Errorf("FetchNativeAnnotations() = %v, want empty slice", native)
	}

	moments, err := repo.FetchMomentsWithInlineNotes(ctx, "missing")
	if err != nil || len(moments) != 0 {
		t.Errorf("FetchMomentsWithInlineNotes() = %v, %v", moments, err)
	}

	players, err := repo.FetchPlayersWithInlineNotes(ctx)
	if err != nil || len(players) != 0 {
		t.Errorf("FetchPlayersWithInlineNotes() = %v, %v", players, err)
	}

	if _, ok, err := repo.FetchFirstGameID(ctx, "missing"); err != nil || ok {
		t.Errorf("FetchFirstGameID() ok = %v, err = %v", ok, err)
	}
}

func TestRepository_NativeAnnotationsWithAttachments(t *testing.T) {
	repo := testsupport.NewRepository(t)
	ctx := context.Background()

	testsupport.SeedProject(t, repo, "p1")
	testsupport.SeedProject(t, repo, "p2")
	testsupport.SeedGame(t, repo, "p1", "g1", 0)
	testsupport.SeedGame(t, repo, "p2", "g2", 0)

	testsupport.SeedAnnotation(t, repo, catalog.Annotation{
		ID: "a1", MomentID: "m1", GameID: "g1", Content: "press break",
		Attachments: []catalog.Attachment{
			{Kind: catalog.KindMoment, TargetID: "m1"},
			{Kind: catalog.KindLayer, TargetID: "layer-7"},
		},
	})
	testsupport.SeedAnnotation(t, repo, catalog.Annotation{
		ID: "a2", GameID: "g1", Content: "good footwork",
		PlayerID:  testsupport.Ptr("pl1"),
		CreatedAt: testsupport.Epoch.Add(time.Minute),
	})
	testsupport.SeedAnnotation(t, repo, catalog.Annotation{ID: "other", GameID: "g2", Content: "elsewhere"})

	got, err := repo.FetchNativeAnnotations(ctx, "p1")
	if err != nil {
		t.Fatalf("FetchNativeAnnotations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d annotations, want 2", len(got))
	}
	if got[0].ID != "a1" || got[1].ID != "a2" {
		t.Errorf("order = [%s %s], want [a1 a2]", got[0].ID, got[1].ID)
	}
	if len(got[0].Attachments) != 2 || got[0].Attachments[1].Kind != catalog.KindLayer {
		t.Errorf("a1 attachments = %+v", got[0].Attachments)
	}
	if got[0].Origin != catalog.NativeOrigin("a1") {
		t.Errorf("a1 origin = %+v", got[0].Origin)
	}
	if got[1].PlayerID == nil || *got[1].PlayerID != "pl1" {
		t.Errorf("a2 player = %v", got[1].PlayerID)
	}
	if len(got[1].Attachments) != 0 {
		t.Errorf("a2 attachments = %+v, want none", got[1].Attachments)
	}
}

func TestRepository_InlineNotes(t *testing.T) {
	repo := testsupport.NewRepository(t)
	ctx := context.Background()

	testsupport.SeedProject(t, repo, "p1")
	testsupport.SeedGame(t, repo, "p1", "g1", 0)
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m1", GameID: "g1", StartMs: 2000, Notes: testsupport.Ptr("late rotation")})
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m2", GameID: "g1", StartMs: 1000, Notes: testsupport.Ptr("   ")})
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "m3", GameID: "g1", StartMs: 500})
	testsupport.SeedPlayer(t, repo, "pl1", "Avery", testsupport.Ptr("strong left"))
	testsupport.SeedPlayer(t, repo, "pl2", "Blake", nil)

	notes, err := repo.FetchMomentsWithInlineNotes(ctx, "p1")
	if err != nil {
		t.Fatalf("FetchMomentsWithInlineNotes() error = %v", err)
	}
	if len(notes) != 1 || notes[0].Moment.ID != "m1" || notes[0].Text != "late rotation" {
		t.Errorf("moment notes = %+v", notes)
	}

	players, err := repo.FetchPlayersWithInlineNotes(ctx)
	if err != nil {
		t.Fatalf("FetchPlayersWithInlineNotes() error = %v", err)
	}
	if len(players) != 1 || players[0].PlayerID != "pl1" {
		t.Errorf("player notes = %+v", players)
	}

	ok, err := repo.UpdateMomentNote(ctx, "m1", nil)
	if err != nil || !ok {
		t.Fatalf("UpdateMomentNote() = %v, %v", ok, err)
	}
	notes, _ = repo.FetchMomentsWithInlineNotes(ctx, "p1")
	if len(notes) != 0 {
		t.Errorf("after clearing, moment notes = %+v", notes)
	}

	ok, err = repo.UpdatePlayerNote(ctx, "nobody", testsupport.Ptr("x"))
	if err != nil || ok {
		t.Errorf("UpdatePlayerNote(nobody) = %v, %v, want false, nil", ok, err)
	}
}

func TestRepository_UpdateAndDeleteAnnotation(t *testing.T) {
	repo := testsupport.NewRepository(t)
	ctx := context.Background()

	testsupport.SeedProject(t, repo, "p1")
	testsupport.SeedGame(t, repo, "p1", "g1", 0)
	testsupport.SeedAnnotation(t, repo, catalog.Annotation{
		ID: "a1", GameID: "g1", Content: "before",
		Attachments: []catalog.Attachment{{Kind: catalog.KindLayer, TargetID: "l1"}},
	})

	ok, err := repo.UpdateAnnotationContent(ctx, "a1", "after")
	if err != nil || !ok {
		t.Fatalf("UpdateAnnotationContent() = %v, %v", ok, err)
	}
	got, _ := repo.FetchNativeAnnotations(ctx, "p1")
	if got[0].Content != "after" || got[0].ModifiedAt == nil {
		t.Errorf("updated annotation = %+v", got[0])
	}

	ok, err = repo.DeleteAnnotation(ctx, "a1")
	if err != nil || !ok {
		t.Fatalf("DeleteAnnotation() = %v, %v", ok, err)
	}
	ok, err = repo.DeleteAnnotation(ctx, "a1")
	if err != nil || ok {
		t.Errorf("second DeleteAnnotation() = %v, %v, want false, nil", ok, err)
	}

	got, _ = repo.FetchNativeAnnotations(ctx, "p1")
	if len(got) != 0 {
		t.Errorf("annotations after delete = %d", len(got))
	}
}

func TestRepository_FirstGameAndMoments(t *testing.T) {
	repo := testsupport.NewRepository(t)
	ctx := context.Background()

	testsupport.SeedProject(t, repo, "p1")
	testsupport.SeedGame(t, repo, "p1", "late", time.Hour)
	testsupport.SeedGame(t, repo, "p1", "early", 0)
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "b", GameID: "early", StartMs: 300, DurationMs: testsupport.Ptr(int64(50))})
	testsupport.SeedMoment(t, repo, catalog.Moment{ID: "a", GameID: "early", StartMs: 100})

	id, ok, err := repo.FetchFirstGameID(ctx, "p1")
	if err != nil || !ok || id != "early" {
		t.Errorf("FetchFirstGameID() = %q, %v, %v", id, ok, err)
	}

	moments, err := repo.FetchMoments(ctx, "early")
	if err != nil {
		t.Fatalf("FetchMoments() error = %v", err)
	}
	if len(moments) != 2 || moments[0].ID != "a" || moments[1].ID != "b" {
		t.Fatalf("moments = %+v", moments)
	}
	if moments[0].DurationMs != nil {
		t.Error("open moment should have nil duration")
	}
	if moments[1].DurationMs == nil || *moments[1].DurationMs != 50 {
		t.Errorf("duration = %v", moments[1].DurationMs)
	}
	if !moments[0].CreatedAt.Equal(testsupport.Epoch) {
		t.Errorf("created_at = %v, want %v", moments[0].CreatedAt, testsupport.Epoch)
	}
}

func TestRepository_CreateMomentValidates(t *testing.T) {
	repo := testsupport.NewRepository(t)
	err := repo.CreateMoment(context.Background(), &catalog.Moment{ID: "m", GameID: "g", StartMs: -1})
	if err == nil {
		t.Fatal("expected validation error for negative start")
	}
}

func TestOrigin_RoundTrip(t *testing.T) {
	tests := []catalog.Origin{
		catalog.NativeOrigin("6f1c"),
		catalog.MomentOrigin("m-42"),
		catalog.PlayerOrigin("pl-9"),
	}
	for _, o := range tests {
		if got := catalog.ParseOrigin(o.AnnotationID()); got != o {
			t.Errorf("ParseOrigin(%q) = %+v, want %+v", o.AnnotationID(), got, o)
		}
	}
	if catalog.NativeOrigin("x").Synthesized() {
		t.Error("native origin reported as synthesized")
	}
}

func TestConfigProjectContext(t *testing.T) {
	repo := testsupport.NewRepository(t)
	ctx := context.Background()
	pc := catalog.NewConfigProjectContext(repo, nil)

	if _, ok := pc.CurrentProjectID(ctx); ok {
		t.Fatal("expected no current project")
	}
	if err := pc.Open(ctx, "missing"); err == nil {
		t.Fatal("Open() should fail for unknown project")
	}

	testsupport.SeedProject(t, repo, "p1")
	if err := pc.Open(ctx, "p1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if id, ok := pc.CurrentProjectID(ctx); !ok || id != "p1" {
		t.Errorf("CurrentProjectID() = %q, %v", id, ok)
	}
	if err := pc.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := pc.CurrentProjectID(ctx); ok {
		t.Error("project still open after Close()")
	}
}
