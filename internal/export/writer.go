package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// FileExporter writes export requests as files into a single directory.
type FileExporter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewFileExporter(dir string, logger *slog.Logger) *FileExporter {
	return &FileExporter{dir: dir, logger: logger, now: time.Now}
}

func (e *FileExporter) Dir() string {
	return e.dir
}

func (e *FileExporter) Write(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return Result{}, err
	}
	if len(req.Moments) == 0 {
		return Result{}, fmt.Errorf("no moments to export")
	}

	if err := e.EnsureDir(); err != nil {
		return Result{}, err
	}

	title := FileTitle(req.Title)
	req.Title = title
	req.FrameRate = frameRateOrDefault(req.FrameRate)

	now := e.now()
	outputPath := filepath.Join(e.dir, title+"."+string(req.Format))

	var data []byte
	var err error
	switch req.Format {
	case FormatEDL:
		data = []byte(GenerateEDL(ClipsFromMoments(req.Moments, req.MediaPath), title, req.FrameRate))
	case FormatJSON:
		data, err = json.MarshalIndent(NewDocument(req, now), "", "  ")
	case FormatYAML:
		data, err = yaml.Marshal(NewDocument(req, now))
	case FormatXLSX:
		data, err = GenerateXLSX(req)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", req.Format, err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write export file: %w", err)
	}

	e.logger.Info("export written",
		"format", string(req.Format),
		"path", outputPath,
		"moments", len(req.Moments),
	)
	return Result{
		Format:      req.Format,
		OutputPath:  outputPath,
		MomentCount: len(req.Moments),
		WrittenAt:   now,
	}, nil
}

var xlsxHeader = []any{"#", "Category", "Start", "Start (ms)", "Duration (ms)", "End", "Notes", "Moment ID"}

const xlsxSheet = "Moments"

// GenerateXLSX renders the moments as a single-sheet workbook.
func GenerateXLSX(req Request) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &xlsxHeader); err != nil {
		return nil, err
	}

	rate := fps(req.FrameRate)
	for i, m := range req.Moments {
		var duration any
		if m.DurationMs != nil {
			duration = *m.DurationMs
		}
		notes := ""
		if m.Notes != nil {
			notes = *m.Notes
		}
		row := []any{
			i + 1,
			m.Category,
			msToTimecode(m.StartMs, rate),
			m.StartMs,
			duration,
			msToTimecode(m.EndMs(), rate),
			notes,
			m.ID,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
