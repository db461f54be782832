package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

var ErrNoMedia = errors.New("no media file")

// FileServer streams a game's video to the review surface with byte-range
// support so the player can scrub.
type FileServer struct {
	logger *slog.Logger
}

func NewFileServer(logger *slog.Logger) *FileServer {
	return &FileServer{logger: logger}
}

func (s *FileServer) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	if filePath == "" {
		return ErrNoMedia
	}
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoMedia, filePath)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNoMedia, filePath)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	s.logger.Debug("serving media", "path", filePath, "range", r.Header.Get("Range"))
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}
