package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Game struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	VideoPath string    `json:"video_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Moment is a time-coded tagged event. A nil DurationMs means the moment is
// still open.
type Moment struct {
	ID         string    `json:"id"`
	GameID     string    `json:"game_id"`
	Category   string    `json:"category"`
	StartMs    int64     `json:"start_ms"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (m *Moment) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("moment id is required")
	}
	if m.StartMs < 0 {
		return fmt.Errorf("moment %s: start must be >= 0, got %d", m.ID, m.StartMs)
	}
	if m.DurationMs != nil && *m.DurationMs < 0 {
		return fmt.Errorf("moment %s: duration must be >= 0, got %d", m.ID, *m.DurationMs)
	}
	return nil
}

// Start returns the moment start as media time.
func (m *Moment) Start() time.Duration {
	return time.Duration(m.StartMs) * time.Millisecond
}

// EndMs returns start+duration, or start for open moments.
func (m *Moment) EndMs() int64 {
	if m.DurationMs == nil {
		return m.StartMs
	}
	return m.StartMs + *m.DurationMs
}

type Player struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Number int     `json:"number,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

type AttachmentKind string

const (
	KindMoment AttachmentKind = "moment"
	KindLayer  AttachmentKind = "layer"
	KindPlayer AttachmentKind = "player"
)

var AttachmentKinds = []AttachmentKind{KindMoment, KindLayer, KindPlayer}

func ParseAttachmentKind(s string) (AttachmentKind, error) {
	k := AttachmentKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindMoment, KindLayer, KindPlayer:
		return k, nil
	}
	return "", fmt.Errorf("unknown attachment kind %q", s)
}

type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	TargetID string         `json:"target_id"`
}

// OriginKind tags where an annotation's text is physically stored.
type OriginKind string

const (
	OriginNative OriginKind = "native"
	OriginMoment OriginKind = "moment"
	OriginPlayer OriginKind = "player"
)

const (
	momentNotePrefix = "moment-note:"
	playerNotePrefix = "player-note:"
)

// Origin identifies the owner of an annotation's text: the annotation table
// itself, or the inline note field of a moment or player.
type Origin struct {
	Kind     OriginKind `json:"kind"`
	SourceID string     `json:"source_id"`
}

func NativeOrigin(id string) Origin { return Origin{Kind: OriginNative, SourceID: id} }

func MomentOrigin(momentID string) Origin { return Origin{Kind: OriginMoment, SourceID: momentID} }

func PlayerOrigin(playerID string) Origin { return Origin{Kind: OriginPlayer, SourceID: playerID} }

// AnnotationID derives the annotation identifier for the origin. Synthesized
// ids are a pure function of the source id so reconciliation is idempotent.
func (o Origin) AnnotationID() string {
	switch o.Kind {
	case OriginMoment:
		return momentNotePrefix + o.SourceID
	case OriginPlayer:
		return playerNotePrefix + o.SourceID
	default:
		return o.SourceID
	}
}

func (o Origin) Synthesized() bool {
	return o.Kind == OriginMoment || o.Kind == OriginPlayer
}

// ParseOrigin is the inverse of Origin.AnnotationID.
func ParseOrigin(annotationID string) Origin {
	switch {
	case strings.HasPrefix(annotationID, momentNotePrefix):
		return MomentOrigin(strings.TrimPrefix(annotationID, momentNotePrefix))
	case strings.HasPrefix(annotationID, playerNotePrefix):
		return PlayerOrigin(strings.TrimPrefix(annotationID, playerNotePrefix))
	default:
		return NativeOrigin(annotationID)
	}
}

// Annotation is the unified note model. MomentID is empty for player notes
// that are not tied to any moment.
type Annotation struct {
	ID          string       `json:"id"`
	MomentID    string       `json:"moment_id,omitempty"`
	GameID      string       `json:"game_id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	PlayerID    *string      `json:"player_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ModifiedAt  *time.Time   `json:"modified_at,omitempty"`
	Origin      Origin       `json:"origin"`
}

func (a *Annotation) HasAttachmentKind(kind AttachmentKind) bool {
	for _, att := range a.Attachments {
		if att.Kind == kind {
			return true
		}
	}
	return false
}

// MatchesKind reports whether the annotation belongs under an attachment-type
// heading. A set PlayerID counts as a player attachment even when no explicit
// player attachment exists.
func (a *Annotation) MatchesKind(kind AttachmentKind) bool {
	if a.HasAttachmentKind(kind) {
		return true
	}
	return kind == KindPlayer && a.PlayerID != nil && *a.PlayerID != ""
}

// ReferencedMoments lists the distinct moment ids the annotation points at,
// through MomentID or a moment attachment.
func (a *Annotation) ReferencedMoments() []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(a.MomentID)
	for _, att := range a.Attachments {
		if att.Kind == KindMoment {
			add(att.TargetID)
		}
	}
	return ids
}

// MomentNote pairs a moment with its non-empty inline note text.
type MomentNote struct {
	Moment Moment
	Text   string
}

// PlayerNote pairs a player id with its non-empty inline note text.
type PlayerNote struct {
	PlayerID string
	Text     string
}

func NewID() string {
	return uuid.NewString()
}
