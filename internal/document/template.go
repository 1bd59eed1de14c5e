package document

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"moledger/internal/models"
)

// DefaultSheet is the page name used by the built-in template.
const DefaultSheet = "MO Template"

// Template is an immutable xlsx workbook holding one template page plus any
// scaffolding pages. Every document gets its own copy opened from the raw
// bytes, so merges never touch shared state.
type Template struct {
	data  []byte
	sheet string
}

// NewTemplate validates raw as a workbook containing sheet. An empty sheet
// selects the first page.
func NewTemplate(raw []byte, sheet string) (*Template, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open template: %v: %w", err, models.ErrTemplateStructure)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("template page %q missing: %w", sheet, models.ErrTemplateStructure)
	}
	return &Template{data: append([]byte(nil), raw...), sheet: sheet}, nil
}

// LoadTemplate reads a template workbook from disk.
func LoadTemplate(path, sheet string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return NewTemplate(raw, sheet)
}

// Sheet is the name of the template page.
func (t *Template) Sheet() string { return t.sheet }

func (t *Template) open() (*excelize.File, error) {
	f, err := excelize.OpenReader(bytes.NewReader(t.data))
	if err != nil {
		return nil, fmt.Errorf("open template: %v: %w", err, models.ErrTemplateStructure)
	}
	return f, nil
}

// DefaultTemplate builds a single-page template exposing every token.
func DefaultTemplate() (*Template, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DefaultSheet); err != nil {
		return nil, err
	}
	s := DefaultSheet

	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return nil, err
	}
	label, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	cells := [][2]string{
		{"A1", "Manufacturing Order"},
		{"A2", "MO No."}, {"B2", Wrap(TokenMOID)}, {"D2", "Date"}, {"E2", Wrap(TokenDate)},
		{"A3", "Part No."}, {"B3", Wrap(TokenPartNo)}, {"D3", "Order No."}, {"E3", Wrap(TokenOrderNo)},
		{"A4", "Name"}, {"B4", Wrap(TokenName)}, {"D4", "Customer Part"}, {"E4", Wrap(TokenCustPart)},
		{"A5", "Material"}, {"B5", Wrap(TokenMaterial)}, {"D5", "Quantity"}, {"E5", Wrap(TokenQty)},
		{"A6", "Model"}, {"B6", Wrap(TokenModel)},
		{"G2", Wrap(TokenQRCode)},
		{"A8", "Station"}, {"B8", "Standard Time"}, {"D8", "Part Image"},
		{"D9", Wrap(TokenImage)},
	}
	for i := 1; i <= models.MaxStations; i++ {
		row := 8 + i
		cells = append(cells,
			[2]string{fmt.Sprintf("A%d", row), Wrap(StationToken(i))},
			[2]string{fmt.Sprintf("B%d", row), Wrap(TimeToken(i))},
		)
	}
	for _, c := range cells {
		if err := f.SetCellValue(s, c[0], c[1]); err != nil {
			return nil, err
		}
	}

	f.SetCellStyle(s, "A1", "A1", title)
	for _, c := range []string{"A2", "A3", "A4", "A5", "A6", "D2", "D3", "D4", "D5", "A8", "B8", "D8"} {
		f.SetCellStyle(s, c, c, label)
	}
	f.SetColWidth(s, "A", "A", 18)
	f.SetColWidth(s, "B", "B", 26)
	f.SetColWidth(s, "C", "C", 4)
	f.SetColWidth(s, "D", "E", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write default template: %w", err)
	}
	return NewTemplate(buf.Bytes(), DefaultSheet)
}
