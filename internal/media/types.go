// Package media reads stream metadata from video files with ffprobe. The
// review surface uses it for the playable duration, and frame stepping and
// timecode export use it for the frame rate.
package media

import (
	"context"
	"time"
)

// Info describes the primary video stream of a file.
type Info struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
	FrameRate  float64       `json:"frame_rate"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Codec      string        `json:"codec"`
	Bitrate    int64         `json:"bitrate,omitempty"`
	AudioCodec string        `json:"audio_codec,omitempty"`
	ProbedAt   time.Time     `json:"probed_at"`
}

type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}
