package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"moledger/internal/models"
)

// maxSheetName is the workbook limit on page name length.
const maxSheetName = 31

// Assembler builds documents from a template.
type Assembler struct {
	Engine   *Engine
	Template *Template
	Single   Bounds
	Batch    Bounds
}

// NewAssembler uses SingleBounds and BatchBounds.
func NewAssembler(e *Engine, t *Template) *Assembler {
	return &Assembler{Engine: e, Template: t, Single: SingleBounds, Batch: BatchBounds}
}

// BuildSingle fills one copy of the template for rec. The filled template
// page becomes the target page.
func (a *Assembler) BuildSingle(ctx context.Context, rec models.MORecord) (*Document, error) {
	f, err := a.Template.open()
	if err != nil {
		return nil, err
	}
	fetched := a.Engine.Fetch(ctx, rec)
	res, err := a.Engine.Fill(f, a.Template.sheet, rec, fetched, a.Single)
	if err != nil {
		f.Close()
		return nil, err
	}
	page := Page{ID: sheetID(f, a.Template.sheet), Name: a.Template.sheet}
	return &Document{
		FileName:     SingleFileName(rec.MOID),
		Pages:        []Page{page},
		TargetPageID: page.ID,
		Results:      []MergeResult{res},
		file:         f,
	}, nil
}

// BuildCombined appends one page per record, named by its MO id and filled
// from a copy of the template page, then drops every page that was not
// produced for a record. Pages keep the order of recs.
func (a *Assembler) BuildCombined(ctx context.Context, recs []models.MORecord, fileName string) (*Document, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("combined document needs at least one record: %w", models.ErrInvalidInput)
	}
	f, err := a.Template.open()
	if err != nil {
		return nil, err
	}
	doc, err := a.combine(ctx, f, recs, fileName)
	if err != nil {
		f.Close()
		return nil, err
	}
	return doc, nil
}

func (a *Assembler) combine(ctx context.Context, f *excelize.File, recs []models.MORecord, fileName string) (*Document, error) {
	src, err := f.GetSheetIndex(a.Template.sheet)
	if err != nil || src < 0 {
		return nil, fmt.Errorf("template page %q missing: %w", a.Template.sheet, models.ErrTemplateStructure)
	}

	fetched := a.Engine.FetchAll(ctx, recs)
	doc := &Document{FileName: fileName, file: f}
	keep := make(map[int]bool, len(recs))

	for i, rec := range recs {
		name := uniqueSheetName(f, rec.MOID)
		idx, err := f.NewSheet(name)
		if err != nil {
			return nil, fmt.Errorf("add page %s: %v: %w", name, err, models.ErrTemplateStructure)
		}
		if err := f.CopySheet(src, idx); err != nil {
			return nil, fmt.Errorf("copy template to %s: %v: %w", name, err, models.ErrTemplateStructure)
		}
		res, err := a.Engine.Fill(f, name, rec, fetched[i], a.Batch)
		if err != nil {
			return nil, err
		}
		page := Page{ID: sheetID(f, name), Name: name}
		keep[page.ID] = true
		doc.Pages = append(doc.Pages, page)
		doc.Results = append(doc.Results, res)
	}

	for id, name := range f.GetSheetMap() {
		if keep[id] {
			continue
		}
		if err := f.DeleteSheet(name); err != nil {
			return nil, fmt.Errorf("remove scaffold page %s: %w", name, err)
		}
	}
	if idx, err := f.GetSheetIndex(doc.Pages[0].Name); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return doc, nil
}

func uniqueSheetName(f *excelize.File, base string) string {
	base = sanitizeSheetName(base)
	name := base
	for n := 2; ; n++ {
		if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
			return name
		}
		suffix := fmt.Sprintf(" (%d)", n)
		trimmed := base
		if len(trimmed)+len(suffix) > maxSheetName {
			trimmed = trimmed[:maxSheetName-len(suffix)]
		}
		name = trimmed + suffix
	}
}

func sanitizeSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		s = "MO"
	}
	if len(s) > maxSheetName {
		s = s[:maxSheetName]
	}
	return s
}
