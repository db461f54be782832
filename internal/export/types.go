package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

var ErrUnknownFormat = errors.New("unknown export format")

type Format string

const (
	FormatEDL  Format = "edl"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var Formats = []Format{FormatEDL, FormatXLSX, FormatYAML, FormatJSON}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatEDL, FormatXLSX, FormatYAML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

const (
	DefaultFrameRate = 30.0
	// OpenClipMs is the clip length given to moments that have no duration
	// yet.
	OpenClipMs = 1000
)

// Request is one export job: an ordered batch of moments plus the session
// details the formats need.
type Request struct {
	Format    Format
	Title     string
	MediaPath string
	FrameRate float64
	Moments   []catalog.Moment
}

type Clip struct {
	MomentID  string
	ClipName  string
	MediaPath string
	StartMs   int64
	EndMs     int64
}

// ClipsFromMoments turns moments into source clips, in order. Open moments
// get OpenClipMs.
func ClipsFromMoments(moments []catalog.Moment, mediaPath string) []Clip {
	clips := make([]Clip, 0, len(moments))
	for i := range moments {
		m := &moments[i]
		end := m.EndMs()
		if m.DurationMs == nil || end <= m.StartMs {
			end = m.StartMs + OpenClipMs
		}
		clips = append(clips, Clip{
			MomentID:  m.ID,
			ClipName:  ClipName(*m),
			MediaPath: mediaPath,
			StartMs:   m.StartMs,
			EndMs:     end,
		})
	}
	return clips
}

type Result struct {
	Format      Format    `json:"format"`
	OutputPath  string    `json:"output_path"`
	MomentCount int       `json:"moment_count"`
	WrittenAt   time.Time `json:"written_at"`
}

// Document is the structured form shared by the yaml and json formats.
type Document struct {
	Title     string        `json:"title" yaml:"title"`
	MediaPath string        `json:"media_path,omitempty" yaml:"media_path,omitempty"`
	FrameRate float64       `json:"frame_rate" yaml:"frame_rate"`
	Exported  time.Time     `json:"exported_at" yaml:"exported_at"`
	Moments   []DocumentRow `json:"moments" yaml:"moments"`
}

type DocumentRow struct {
	ID         string `json:"id" yaml:"id"`
	Category   string `json:"category" yaml:"category"`
	Start      string `json:"start" yaml:"start"`
	StartMs    int64  `json:"start_ms" yaml:"start_ms"`
	DurationMs *int64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	Notes      string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

func NewDocument(req Request, now time.Time) Document {
	doc := Document{
		Title:     req.Title,
		MediaPath: req.MediaPath,
		FrameRate: frameRateOrDefault(req.FrameRate),
		Exported:  now.UTC(),
		Moments:   make([]DocumentRow, 0, len(req.Moments)),
	}
	for _, m := range req.Moments {
		row := DocumentRow{
			ID:         m.ID,
			Category:   m.Category,
			Start:      msToTimecode(m.StartMs, fps(doc.FrameRate)),
			StartMs:    m.StartMs,
			DurationMs: m.DurationMs,
		}
		if m.Notes != nil {
			row.Notes = *m.Notes
		}
		doc.Moments = append(doc.Moments, row)
	}
	return doc
}

func frameRateOrDefault(r float64) float64 {
	if r <= 0 {
		return DefaultFrameRate
	}
	return r
}
