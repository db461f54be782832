// Package testsupport holds fixtures shared by package tests: a migrated
// sqlite repository and helpers that seed projects, games, moments, players
// and annotations.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
	"github.com/heimdex/heimdex-review/internal/db"
)

// Epoch is the fixed creation time used by seeded rows.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRepository opens a fresh migrated database under t.TempDir().
func NewRepository(t testing.TB) *catalog.SQLiteRepository {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return catalog.NewRepository(database.Conn())
}

func Ptr[T any](v T) *T {
	return &v
}

func SeedProject(t testing.TB, repo catalog.Repository, id string) *catalog.Project {
	t.Helper()
	p := &catalog.Project{ID: id, Name: "Project " + id, CreatedAt: Epoch}
	if err := repo.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("create project %s: %v", id, err)
	}
	return p
}

// SeedGame creates a game; offset orders games of the same project.
func SeedGame(t testing.TB, repo catalog.Repository, projectID, id string, offset time.Duration) *catalog.Game {
	t.Helper()
	g := &catalog.Game{ID: id, ProjectID: projectID, Title: "Game " + id, CreatedAt: Epoch.Add(offset)}
	if err := repo.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("create game %s: %v", id, err)
	}
	return g
}

func SeedMoment(t testing.TB, repo catalog.Repository, m catalog.Moment) catalog.Moment {
	t.Helper()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = Epoch
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Category == "" {
		m.Category = "Offense"
	}
	if err := repo.CreateMoment(context.Background(), &m); err != nil {
		t.Fatalf("create moment %s: %v", m.ID, err)
	}
	return m
}

func SeedPlayer(t testing.TB, repo catalog.Repository, id, name string, notes *string) *catalog.Player {
	t.Helper()
	p := &catalog.Player{ID: id, Name: name, Notes: notes}
	if err := repo.CreatePlayer(context.Background(), p); err != nil {
		t.Fatalf("create player %s: %v", id, err)
	}
	return p
}

func SeedAnnotation(t testing.TB, repo catalog.Repository, a catalog.Annotation) catalog.Annotation {
	t.Helper()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = Epoch
	}
	if err := repo.CreateAnnotation(context.Background(), &a); err != nil {
		t.Fatalf("create annotation %s: %v", a.ID, err)
	}
	a.Origin = catalog.NativeOrigin(a.ID)
	if a.Attachments == nil {
		a.Attachments = []catalog.Attachment{}
	}
	return a
}
