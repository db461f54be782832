package export

import (
	"fmt"
	"math"
	"strings"
)

// GenerateEDL renders clips as a CMX3600 edit decision list. Record times run
// back to back in clip order.
func GenerateEDL(clips []Clip, title string, frameRate float64) string {
	rate := fps(frameRate)
	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	var recordOffsetMs int64
	for i, clip := range clips {
		srcIn := msToTimecode(clip.StartMs, rate)
		srcOut := msToTimecode(clip.EndMs, rate)
		recIn := msToTimecode(recordOffsetMs, rate)
		durationMs := clip.EndMs - clip.StartMs
		recOut := msToTimecode(recordOffsetMs+durationMs, rate)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clip.ClipName),
		)
		if clip.MediaPath != "" {
			lines = append(lines, fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath))
		}

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func fps(frameRate float64) int {
	rate := int(math.Round(frameRate))
	if rate <= 0 {
		return int(DefaultFrameRate)
	}
	return rate
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	f := int64(fps)
	frames := totalFrames % f
	totalSeconds := totalFrames / f
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
