// Package query filters reconciled annotations and orders moments for the
// review surface. Everything here is a pure function of its inputs.
package query

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

// Filter holds the active annotation filters. Zero values disable a filter;
// active filters are combined with AND.
type Filter struct {
	Kind     catalog.AttachmentKind `json:"kind,omitempty"`
	MomentID string                 `json:"moment_id,omitempty"`
	Text     string                 `json:"text,omitempty"`
}

func (f Filter) Active() bool {
	return f.Kind != "" || f.MomentID != "" || f.Text != ""
}

// FilterAnnotations returns the annotations matching f, in input order.
func FilterAnnotations(all []catalog.Annotation, f Filter) []catalog.Annotation {
	needle := fold(f.Text)
	out := make([]catalog.Annotation, 0, len(all))
	for i := range all {
		a := &all[i]
		if f.Kind != "" && !a.MatchesKind(f.Kind) {
			continue
		}
		if f.MomentID != "" && a.MomentID != f.MomentID {
			continue
		}
		if needle != "" && !strings.Contains(fold(a.Content), needle) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// fold applies Unicode full case folding, so "STRASSE" finds "straße" and
// the Turkish dotted/dotless i variants compare without a locale.
func fold(s string) string {
	if s == "" {
		return ""
	}
	// cases.Caser is stateful; a fresh one per call keeps this goroutine safe.
	return cases.Fold().String(s)
}
