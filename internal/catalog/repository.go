package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is the read/write gateway the reconciliation and review layers use.
// Reads tolerate zero rows: they return empty slices, never ErrNotFound.
// Annotation writes only touch natively stored annotations; inline notes are
// written through their owning moment or player.
type Store interface {
	FetchNativeAnnotations(ctx context.Context, projectID string) ([]Annotation, error)
	FetchMomentsWithInlineNotes(ctx context.Context, projectID string) ([]MomentNote, error)
	FetchPlayersWithInlineNotes(ctx context.Context) ([]PlayerNote, error)
	FetchFirstGameID(ctx context.Context, projectID string) (string, bool, error)
	FetchMoments(ctx context.Context, gameID string) ([]Moment, error)

	UpdateAnnotationContent(ctx context.Context, id, text string) (bool, error)
	DeleteAnnotation(ctx context.Context, id string) (bool, error)
	UpdateMomentNote(ctx context.Context, momentID string, text *string) (bool, error)
	UpdatePlayerNote(ctx context.Context, playerID string, text *string) (bool, error)
}

type Repository interface {
	Store

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	CreateGame(ctx context.Context, g *Game) error
	GetGame(ctx context.Context, id string) (*Game, error)
	ListGames(ctx context.Context, projectID string) ([]*Game, error)

	CreateMoment(ctx context.Context, m *Moment) error
	GetMoment(ctx context.Context, id string) (*Moment, error)

	CreatePlayer(ctx context.Context, p *Player) error
	ListPlayers(ctx context.Context) ([]*Player, error)

	CreateAnnotation(ctx context.Context, a *Annotation) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)
	`, p.ID, p.Name, formatTime(p.CreatedAt))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) CreateGame(ctx context.Context, g *Game) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO games (id, project_id, title, video_path, created_at) VALUES (?, ?, ?, ?, ?)
	`, g.ID, g.ProjectID, g.Title, nullString(g.VideoPath), formatTime(g.CreatedAt))
	return err
}

func (r *SQLiteRepository) GetGame(ctx context.Context, id string) (*Game, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, video_path, created_at FROM games WHERE id = ?
	`, id)

	var g Game
	var videoPath sql.NullString
	var createdAt string
	err := row.Scan(&g.ID, &g.ProjectID, &g.Title, &videoPath, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.VideoPath = videoPath.String
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

func (r *SQLiteRepository) ListGames(ctx context.Context, projectID string) ([]*Game, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, title, video_path, created_at
		FROM games WHERE project_id = ? ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		var g Game
		var videoPath sql.NullString
		var createdAt string
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.Title, &videoPath, &createdAt); err != nil {
			return nil, err
		}
		g.VideoPath = videoPath.String
		g.CreatedAt = parseTime(createdAt)
		games = append(games, &g)
	}
	return games, rows.Err()
}

// FetchFirstGameID returns the oldest game of the project. It is the fallback
// scope for player notes, which belong to no game.
func (r *SQLiteRepository) FetchFirstGameID(ctx context.Context, projectID string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM games WHERE project_id = ? ORDER BY created_at ASC, id ASC LIMIT 1
	`, projectID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r *SQLiteRepository) CreateMoment(ctx context.Context, m *Moment) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO moments (id, game_id, category, start_ms, duration_ms, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.GameID, m.Category, m.StartMs, nullInt64(m.DurationMs), nullStringPtr(m.Notes),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	return err
}

const momentColumns = `m.id, m.game_id, m.category, m.start_ms, m.duration_ms, m.notes, m.created_at, m.updated_at`

func (r *SQLiteRepository) GetMoment(ctx context.Context, id string) (*Moment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+momentColumns+` FROM moments m WHERE m.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moments, err := scanMoments(rows)
	if err != nil || len(moments) == 0 {
		return nil, err
	}
	return &moments[0], nil
}

// FetchMoments returns every moment of a game in timeline order.
func (r *SQLiteRepository) FetchMoments(ctx context.Context, gameID string) ([]Moment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+momentColumns+` FROM moments m
		WHERE m.game_id = ? ORDER BY m.start_ms ASC, m.id ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMoments(rows)
}

func (r *SQLiteRepository) FetchMomentsWithInlineNotes(ctx context.Context, projectID string) ([]MomentNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+momentColumns+` FROM moments m
		JOIN games g ON g.id = m.game_id
		WHERE g.project_id = ? AND m.notes IS NOT NULL AND TRIM(m.notes) != ''
		ORDER BY g.created_at ASC, m.start_ms ASC, m.id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moments, err := scanMoments(rows)
	if err != nil {
		return nil, err
	}

	notes := make([]MomentNote, 0, len(moments))
	for _, m := range moments {
		notes = append(notes, MomentNote{Moment: m, Text: *m.Notes})
	}
	return notes, nil
}

func scanMoments(rows *sql.Rows) ([]Moment, error) {
	moments := []Moment{}
	for rows.Next() {
		var m Moment
		var duration sql.NullInt64
		var notes sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.GameID, &m.Category, &m.StartMs, &duration, &notes, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if duration.Valid {
			d := duration.Int64
			m.DurationMs = &d
		}
		if notes.Valid {
			n := notes.String
			m.Notes = &n
		}
		m.CreatedAt = parseTime(createdAt)
		m.UpdatedAt = parseTime(updatedAt)
		moments = append(moments, m)
	}
	return moments, rows.Err()
}

// UpdateMomentNote rewrites a moment's inline note. A nil text clears it.
func (r *SQLiteRepository) UpdateMomentNote(ctx context.Context, momentID string, text *string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE moments SET notes = ?, updated_at = ? WHERE id = ?
	`, nullStringPtr(text), formatTime(time.Now()), momentID)
	return affected(res, err)
}

func (r *SQLiteRepository) CreatePlayer(ctx context.Context, p *Player) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (id, name, number, notes) VALUES (?, ?, ?, ?)
	`, p.ID, p.Name, p.Number, nullStringPtr(p.Notes))
	return err
}

func (r *SQLiteRepository) ListPlayers(ctx context.Context) ([]*Player, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, number, notes FROM players ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*Player
	for rows.Next() {
		var p Player
		var number sql.NullInt64
		var notes sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &number, &notes); err != nil {
			return nil, err
		}
		p.Number = int(number.Int64)
		if notes.Valid {
			n := notes.String
			p.Notes = &n
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}

// FetchPlayersWithInlineNotes is not project-scoped: players are roster
// resources shared across projects.
func (r *SQLiteRepository) FetchPlayersWithInlineNotes(ctx context.Context) ([]PlayerNote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, notes FROM players
		WHERE notes IS NOT NULL AND TRIM(notes) != ''
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []PlayerNote{}
	for rows.Next() {
		var n PlayerNote
		if err := rows.Scan(&n.PlayerID, &n.Text); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *SQLiteRepository) UpdatePlayerNote(ctx context.Context, playerID string, text *string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE players SET notes = ? WHERE id = ?`, nullStringPtr(text), playerID)
	return affected(res, err)
}

func (r *SQLiteRepository) CreateAnnotation(ctx context.Context, a *Annotation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var modifiedAt sql.NullString
	if a.ModifiedAt != nil {
		modifiedAt = sql.NullString{String: formatTime(*a.ModifiedAt), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO annotations (id, moment_id, game_id, content, player_id, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, nullString(a.MomentID), a.GameID, a.Content, nullStringPtr(a.PlayerID), formatTime(a.CreatedAt), modifiedAt)
	if err != nil {
		return err
	}

	for i, att := range a.Attachments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO annotation_attachments (annotation_id, position, kind, target_id) VALUES (?, ?, ?, ?)
		`, a.ID, i, string(att.Kind), att.TargetID); err != nil {
			return fmt.Errorf("attachment %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// FetchNativeAnnotations returns the annotation table rows of every game in
// the project, oldest first, with attachments in stored order.
func (r *SQLiteRepository) FetchNativeAnnotations(ctx context.Context, projectID string) ([]Annotation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.moment_id, a.game_id, a.content, a.player_id, a.created_at, a.modified_at
		FROM annotations a
		JOIN games g ON g.id = a.game_id
		WHERE g.project_id = ?
		ORDER BY a.created_at ASC, a.id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	annotations := []Annotation{}
	positions := make(map[string]int)
	for rows.Next() {
		var a Annotation
		var momentID, playerID, modifiedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &momentID, &a.GameID, &a.Content, &playerID, &createdAt, &modifiedAt); err != nil {
			return nil, err
		}
		a.MomentID = momentID.String
		if playerID.Valid {
			p := playerID.String
			a.PlayerID = &p
		}
		a.CreatedAt = parseTime(createdAt)
		if modifiedAt.Valid {
			t := parseTime(modifiedAt.String)
			a.ModifiedAt = &t
		}
		a.Attachments = []Attachment{}
		a.Origin = NativeOrigin(a.ID)
		positions[a.ID] = len(annotations)
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(annotations) == 0 {
		return annotations, nil
	}

	attRows, err := r.db.QueryContext(ctx, `
		SELECT aa.annotation_id, aa.kind, aa.target_id
		FROM annotation_attachments aa
		JOIN annotations a ON a.id = aa.annotation_id
		JOIN games g ON g.id = a.game_id
		WHERE g.project_id = ?
		ORDER BY aa.annotation_id ASC, aa.position ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer attRows.Close()

	for attRows.Next() {
		var annotationID, kind string
		var att Attachment
		if err := attRows.Scan(&annotationID, &kind, &att.TargetID); err != nil {
			return nil, err
		}
		att.Kind = AttachmentKind(kind)
		if pos, ok := positions[annotationID]; ok {
			annotations[pos].Attachments = append(annotations[pos].Attachments, att)
		}
	}
	return annotations, attRows.Err()
}

func (r *SQLiteRepository) UpdateAnnotationContent(ctx context.Context, id, text string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE annotations SET content = ?, modified_at = ? WHERE id = ?
	`, text, formatTime(time.Now()), id)
	return affected(res, err)
}

func (r *SQLiteRepository) DeleteAnnotation(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM annotations WHERE id = ?", id)
	return affected(res, err)
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) DeleteConfig(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key)
	return err
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// datetime('now') defaults use the sqlite layout.
		t, _ = time.Parse(time.DateTime, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
