package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

const (
	maxClipNameLen  = 160
	maxFileTitleLen = 120
	defaultTitle    = "heimdex_review"
)

// ClipName is the name a moment's clip carries in EDL comments and sheet
// rows: its category, or the moment id when none of the category survives.
func ClipName(m catalog.Moment) string {
	if name := cleanName(m.Category, maxClipNameLen); name != "" {
		return name
	}
	return m.ID
}

// FileTitle turns a project or user supplied title into the base name of an
// export file.
func FileTitle(title string) string {
	if name := cleanName(title, maxFileTitleLen); name != "" {
		return name
	}
	return defaultTitle
}

// cleanName drops control characters and folds each run of separators or
// other unsafe runes into a single '_'. Leading dots and underscores are
// stripped so a title never produces a hidden file.
func cleanName(s string, maxLen int) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			continue
		case isNameRune(r):
			if pendingUnderscore {
				b.WriteRune('_')
				pendingUnderscore = false
			}
			b.WriteRune(r)
		default:
			pendingUnderscore = b.Len() > 0
		}
	}

	name := strings.TrimSpace(strings.TrimLeft(b.String(), " ._"))
	if runes := []rune(name); len(runes) > maxLen {
		name = string(runes[:maxLen])
	}
	return strings.TrimSpace(name)
}

func isNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')', '&', '+':
		return true
	}
	return false
}

// EnsureDir creates the export directory and checks that it is usable.
func (e *FileExporter) EnsureDir() error {
	if err := checkExportDir(e.dir); err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	info, err := os.Stat(e.dir)
	if err != nil {
		return fmt.Errorf("invalid export dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export dir %s is not a directory", e.dir)
	}
	return nil
}

// checkExportDir rejects configured export dirs that are empty, unclean or
// climb out of their parent.
func checkExportDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("export dir is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("export dir cannot contain path traversal")
		}
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("export dir must be a clean path")
	}
	return nil
}
