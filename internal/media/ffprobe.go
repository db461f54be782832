package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024
	defaultTimeout = 30 * time.Second
)

var ErrNoVideoStream = errors.New("no video stream")

// FFprobe runs the ffprobe binary as a subprocess.
type FFprobe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFprobe resolves the ffprobe binary. An empty preferred path searches
// PATH.
func NewFFprobe(preferred string, logger *slog.Logger) (*FFprobe, error) {
	binary, err := resolveBinary(preferred)
	if err != nil {
		return nil, err
	}
	logger.Info("media prober initialised", "ffprobe", binary)
	return &FFprobe{binary: binary, timeout: defaultTimeout, logger: logger}, nil
}

func (p *FFprobe) Probe(ctx context.Context, path string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		p.logger.Warn("ffprobe failed",
			"exit_code", exitCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr_tail", truncate(stderr.String(), 512),
		)
		return nil, fmt.Errorf("ffprobe exited %d: %s", exitCode, truncate(strings.TrimSpace(stderr.String()), 512))
	}

	info, err := ParseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	info.Path = path
	info.ProbedAt = time.Now()

	p.logger.Debug("ffprobe complete",
		"duration_ms", info.DurationMs,
		"frame_rate", info.FrameRate,
		"codec", info.Codec,
	)
	return info, nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// ParseProbeOutput decodes `ffprobe -print_format json -show_format
// -show_streams` output. The first video stream wins.
func ParseProbeOutput(data []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	info := &Info{}
	var video *probeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}
	if video == nil {
		return nil, ErrNoVideoStream
	}

	info.Codec = video.CodecName
	info.Width = video.Width
	info.Height = video.Height
	info.FrameRate = parseRate(video.AvgFrameRate)
	if info.FrameRate == 0 {
		info.FrameRate = parseRate(video.RFrameRate)
	}

	seconds := parseFloat(out.Format.Duration)
	if seconds == 0 {
		seconds = parseFloat(video.Duration)
	}
	info.Duration = time.Duration(seconds * float64(time.Second))
	info.DurationMs = info.Duration.Milliseconds()
	info.Bitrate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)
	return info, nil
}

// parseRate reads ffprobe rationals such as "30000/1001". "0/0" yields 0.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func resolveBinary(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured ffprobe %q not found", preferred)
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no ffprobe binary found on PATH")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
