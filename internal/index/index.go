// Package index holds the derived, read-only view of a loaded project: the
// moment arena with its id lookup, the reconciled annotations and their
// counts. A Snapshot is never mutated after Build; reloads build a new one and
// swap it in through a Holder.
package index

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

const UnknownMomentLabel = "Unknown moment"

type Snapshot struct {
	ProjectID string
	GameID    string
	BuiltAt   time.Time

	moments   []catalog.Moment
	positions map[string]int

	annotations         []catalog.Annotation
	annotationPositions map[string]int
	perMoment           map[string]int
	perKind             map[catalog.AttachmentKind]int
}

// Empty is the snapshot published when no project is open.
func Empty() *Snapshot {
	return Build("", "", nil, nil)
}

// Build indexes moments and annotations in one pass each. Duplicate moment
// ids overwrite the earlier position (last write wins).
func Build(projectID, gameID string, moments []catalog.Moment, annotations []catalog.Annotation) *Snapshot {
	s := &Snapshot{
		ProjectID:           projectID,
		GameID:              gameID,
		BuiltAt:             time.Now(),
		moments:             make([]catalog.Moment, 0, len(moments)),
		positions:           make(map[string]int, len(moments)),
		annotations:         make([]catalog.Annotation, len(annotations)),
		annotationPositions: make(map[string]int, len(annotations)),
		perMoment:           make(map[string]int),
		perKind:             make(map[catalog.AttachmentKind]int, len(catalog.AttachmentKinds)),
	}

	for _, m := range moments {
		if pos, ok := s.positions[m.ID]; ok {
			s.moments[pos] = m
			continue
		}
		s.positions[m.ID] = len(s.moments)
		s.moments = append(s.moments, m)
	}

	copy(s.annotations, annotations)
	for i := range s.annotations {
		a := &s.annotations[i]
		s.annotationPositions[a.ID] = i
		for _, id := range a.ReferencedMoments() {
			s.perMoment[id]++
		}
		for _, kind := range catalog.AttachmentKinds {
			if a.MatchesKind(kind) {
				s.perKind[kind]++
			}
		}
	}
	return s
}

func (s *Snapshot) Moment(id string) (catalog.Moment, bool) {
	pos, ok := s.positions[id]
	if !ok {
		return catalog.Moment{}, false
	}
	return s.moments[pos], true
}

// Moments returns the moments in load order. The slice is a copy.
func (s *Snapshot) Moments() []catalog.Moment {
	out := make([]catalog.Moment, len(s.moments))
	copy(out, s.moments)
	return out
}

func (s *Snapshot) MomentCount() int {
	return len(s.moments)
}

// Annotations returns the reconciled annotations in reconciliation order.
// The slice is a copy.
func (s *Snapshot) Annotations() []catalog.Annotation {
	out := make([]catalog.Annotation, len(s.annotations))
	copy(out, s.annotations)
	return out
}

func (s *Snapshot) Annotation(id string) (catalog.Annotation, bool) {
	pos, ok := s.annotationPositions[id]
	if !ok {
		return catalog.Annotation{}, false
	}
	return s.annotations[pos], true
}

// AnnotationCount is the number of annotations referencing the moment.
func (s *Snapshot) AnnotationCount(momentID string) int {
	return s.perMoment[momentID]
}

// KindCount is the number of annotations listed under the attachment kind.
func (s *Snapshot) KindCount(kind catalog.AttachmentKind) int {
	return s.perKind[kind]
}

// MomentLabel renders "<category> @ mm:ss.mmm" for display joins, or
// UnknownMomentLabel when the moment is not in this snapshot.
func (s *Snapshot) MomentLabel(id string) string {
	m, ok := s.Moment(id)
	if !ok {
		return UnknownMomentLabel
	}
	return fmt.Sprintf("%s @ %s", m.Category, FormatTimestamp(m.StartMs))
}

// FormatTimestamp renders milliseconds as mm:ss.mmm, or h:mm:ss.mmm past an hour.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	sec := (ms / 1000) % 60
	frac := ms % 1000
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, sec, frac)
	}
	return fmt.Sprintf("%02d:%02d.%03d", m, sec, frac)
}

// Holder publishes snapshots atomically. Readers always see one complete
// snapshot, never a mix of two.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder() *Holder {
	h := &Holder{}
	h.current.Store(Empty())
	return h
}

func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

func (h *Holder) Publish(s *Snapshot) {
	if s == nil {
		s = Empty()
	}
	h.current.Store(s)
}
