// Package render turns assembled documents into deliverable files.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"moledger/internal/document"
	"moledger/internal/models"
)

// PaperA4 is the spreadsheet paper-size code for A4.
const PaperA4 = 9

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Options control page setup for export.
type Options struct {
	PaperSize   int
	Landscape   bool
	FitToHeight bool
	// Margin applies to all four edges, in inches.
	Margin float64
}

// DefaultOptions is A4 landscape, one page tall, 0.10 inch margins.
func DefaultOptions() Options {
	return Options{PaperSize: PaperA4, Landscape: true, FitToHeight: true, Margin: 0.10}
}

// Output is a rendered file.
type Output struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Renderer exports a document. Only the target page is exported when the
// document names one.
type Renderer interface {
	Render(ctx context.Context, doc *document.Document, opts Options) (Output, error)
}

// prepare applies page setup to every page and hides pages other than the
// target. It returns the workbook bytes.
func prepare(doc *document.Document, opts Options) ([]byte, error) {
	f := doc.Workbook()
	if f == nil || len(doc.Pages) == 0 {
		return nil, fmt.Errorf("empty document: %w", models.ErrRender)
	}

	orientation := "portrait"
	if opts.Landscape {
		orientation = "landscape"
	}
	size := opts.PaperSize
	if size == 0 {
		size = PaperA4
	}
	m := opts.Margin
	one, zero, fit := 1, 0, true

	for _, p := range doc.Pages {
		layout := &excelize.PageLayoutOptions{Size: &size, Orientation: &orientation}
		if opts.FitToHeight {
			layout.FitToHeight = &one
			layout.FitToWidth = &zero
			if err := f.SetSheetProps(p.Name, &excelize.SheetPropsOptions{FitToPage: &fit}); err != nil {
				return nil, fmt.Errorf("page %s: %v: %w", p.Name, err, models.ErrRender)
			}
		}
		if err := f.SetPageLayout(p.Name, layout); err != nil {
			return nil, fmt.Errorf("page %s layout: %v: %w", p.Name, err, models.ErrRender)
		}
		margins := &excelize.PageLayoutMarginsOptions{Top: &m, Bottom: &m, Left: &m, Right: &m}
		if err := f.SetPageMargins(p.Name, margins); err != nil {
			return nil, fmt.Errorf("page %s margins: %v: %w", p.Name, err, models.ErrRender)
		}
	}

	if doc.TargetPageID != 0 {
		if err := isolate(f, doc.TargetPageID); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %v: %w", err, models.ErrRender)
	}
	return buf.Bytes(), nil
}

func isolate(f *excelize.File, targetID int) error {
	sheets := f.GetSheetMap()
	target, ok := sheets[targetID]
	if !ok {
		return fmt.Errorf("target page %d missing: %w", targetID, models.ErrRender)
	}
	idx, err := f.GetSheetIndex(target)
	if err != nil {
		return fmt.Errorf("target page %s: %v: %w", target, err, models.ErrRender)
	}
	f.SetActiveSheet(idx)
	for id, name := range sheets {
		if id == targetID {
			continue
		}
		if err := f.SetSheetVisible(name, false); err != nil {
			return fmt.Errorf("hide page %s: %v: %w", name, err, models.ErrRender)
		}
	}
	return nil
}

func withExt(name, ext string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + ext
}
