package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

type SortKey string

const (
	SortByCategory SortKey = "category"
	SortByStart    SortKey = "start"
	SortByDuration SortKey = "duration"
	SortByNotes    SortKey = "notes"
)

func ParseSortKey(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case SortByCategory, SortByStart, SortByDuration, SortByNotes:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// MomentSort is the moment table ordering: exactly one key plus a direction.
type MomentSort struct {
	Key        SortKey `json:"key"`
	Descending bool    `json:"descending"`
}

// DefaultMomentSort orders by start time, ascending.
func DefaultMomentSort() MomentSort {
	return MomentSort{Key: SortByStart}
}

// Select returns the ordering after the user picks key: the active key flips
// direction, a new key starts ascending.
func (s MomentSort) Select(key SortKey) MomentSort {
	if key == s.Key {
		return MomentSort{Key: key, Descending: !s.Descending}
	}
	return MomentSort{Key: key}
}

// SortMoments returns a sorted copy. Ascending order is stable on input
// order; descending is the exact reverse of ascending, ties included.
func SortMoments(moments []catalog.Moment, s MomentSort) []catalog.Moment {
	out := make([]catalog.Moment, len(moments))
	copy(out, moments)

	cmpFn := comparator(s.Key)
	slices.SortStableFunc(out, cmpFn)
	if s.Descending {
		slices.Reverse(out)
	}
	return out
}

func comparator(key SortKey) func(a, b catalog.Moment) int {
	switch key {
	case SortByCategory:
		return func(a, b catalog.Moment) int { return strings.Compare(a.Category, b.Category) }
	case SortByDuration:
		return func(a, b catalog.Moment) int { return cmp.Compare(durationOrZero(a), durationOrZero(b)) }
	case SortByNotes:
		return func(a, b catalog.Moment) int { return strings.Compare(notesOrEmpty(a), notesOrEmpty(b)) }
	default:
		return func(a, b catalog.Moment) int { return cmp.Compare(a.StartMs, b.StartMs) }
	}
}

func durationOrZero(m catalog.Moment) int64 {
	if m.DurationMs == nil {
		return 0
	}
	return *m.DurationMs
}

func notesOrEmpty(m catalog.Moment) string {
	if m.Notes == nil {
		return ""
	}
	return *m.Notes
}
