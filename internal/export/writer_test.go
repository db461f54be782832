package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/heimdex/heimdex-review/internal/catalog"
)

func testExporter(t *testing.T) *FileExporter {
	t.Helper()
	e := NewFileExporter(filepath.Join(t.TempDir(), "exports"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func testRequest(format Format) Request {
	dur := int64(1500)
	note := "press high"
	return Request{
		Format:    format,
		Title:     "Cup Final",
		MediaPath: "/media/final.mp4",
		FrameRate: 25,
		Moments: []catalog.Moment{
			{ID: "m2", Category: "Defense", StartMs: 2000, DurationMs: &dur, Notes: &note},
			{ID: "m1", Category: "Offense", StartMs: 500},
		},
	}
}

func TestFileExporter_EDL(t *testing.T) {
	e := testExporter(t)

	res, err := e.Write(context.Background(), testRequest(FormatEDL))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if res.OutputPath != filepath.Join(e.Dir(), "Cup Final.edl") {
		t.Fatalf("OutputPath = %q", res.OutputPath)
	}
	if res.MomentCount != 2 {
		t.Fatalf("MomentCount = %d, want 2", res.MomentCount)
	}

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	edl := string(data)
	if !strings.Contains(edl, "001  AX       V     C        00:00:02:00 00:00:03:13 00:00:00:00 00:00:01:13") {
		t.Fatalf("first event mismatch: %q", edl)
	}
	if strings.Index(edl, "Defense") > strings.Index(edl, "Offense") {
		t.Fatalf("events not in batch order: %q", edl)
	}
}

func TestFileExporter_JSONAndYAML(t *testing.T) {
	e := testExporter(t)

	res, err := e.Write(context.Background(), testRequest(FormatJSON))
	if err != nil {
		t.Fatalf("Write json error: %v", err)
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(doc.Moments) != 2 || doc.Moments[0].ID != "m2" || doc.Moments[0].Notes != "press high" {
		t.Fatalf("unexpected json document: %+v", doc)
	}
	if doc.Moments[1].DurationMs != nil {
		t.Fatalf("open moment should have no duration, got %v", *doc.Moments[1].DurationMs)
	}

	res, err = e.Write(context.Background(), testRequest(FormatYAML))
	if err != nil {
		t.Fatalf("Write yaml error: %v", err)
	}
	if filepath.Ext(res.OutputPath) != ".yaml" {
		t.Fatalf("yaml extension = %q", filepath.Ext(res.OutputPath))
	}
	data, err = os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read yaml: %v", err)
	}
	var ydoc Document
	if err := yaml.Unmarshal(data, &ydoc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if ydoc.Title != "Cup Final" || ydoc.FrameRate != 25 || len(ydoc.Moments) != 2 {
		t.Fatalf("unexpected yaml document: %+v", ydoc)
	}
	if ydoc.Moments[0].Start != "00:00:02:00" {
		t.Fatalf("start timecode = %q", ydoc.Moments[0].Start)
	}
}

func TestFileExporter_XLSX(t *testing.T) {
	e := testExporter(t)

	res, err := e.Write(context.Background(), testRequest(FormatXLSX))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}

	f, err := excelize.OpenFile(res.OutputPath)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][1] != "Category" || rows[1][1] != "Defense" || rows[2][1] != "Offense" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if rows[1][6] != "press high" {
		t.Fatalf("notes cell = %q", rows[1][6])
	}
}

func TestFileExporter_Rejects(t *testing.T) {
	e := testExporter(t)

	req := testRequest("pdf")
	if _, err := e.Write(context.Background(), req); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}

	req = testRequest(FormatEDL)
	req.Moments = nil
	if _, err := e.Write(context.Background(), req); err == nil {
		t.Fatal("expected error for empty batch")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Write(ctx, testRequest(FormatEDL)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFileExporter_DefaultTitle(t *testing.T) {
	e := testExporter(t)
	req := testRequest(FormatJSON)
	req.Title = "\x00\x01"

	res, err := e.Write(context.Background(), req)
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if filepath.Base(res.OutputPath) != defaultTitle+".json" {
		t.Fatalf("OutputPath = %q", res.OutputPath)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"EDL": FormatEDL, " xlsx ": FormatXLSX, "yml": FormatYAML, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("mov"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}
