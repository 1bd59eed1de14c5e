// Package document merges MO records into xlsx template pages and assembles
// single and combined documents.
package document

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Page identifies one page of a document by its stable workbook sheet id.
// Names can change; ids do not.
type Page struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Document is an assembled, not yet rendered, workbook.
type Document struct {
	FileName string
	Pages    []Page
	// TargetPageID restricts export to one page. Zero exports every page.
	TargetPageID int
	Results      []MergeResult

	file *excelize.File
}

// Workbook exposes the underlying workbook to renderers.
func (d *Document) Workbook() *excelize.File { return d.file }

// Close releases the workbook.
func (d *Document) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	return d.file.Close()
}

// PageNames returns page names in order.
func (d *Document) PageNames() []string {
	names := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		names[i] = p.Name
	}
	return names
}

// SingleFileName names a one-record document.
func SingleFileName(moID string) string { return fmt.Sprintf("MO_%s.pdf", moID) }

// BatchFileName names a combined document built by a batch run.
func BatchFileName(count int) string { return fmt.Sprintf("Batch_MO_(%d_records).pdf", count) }

// OrderFileName names a combined document reprinted for one order.
func OrderFileName(orderNo string) string { return fmt.Sprintf("Order_%s_MO.pdf", orderNo) }

func sheetID(f *excelize.File, name string) int {
	for id, n := range f.GetSheetMap() {
		if n == name {
			return id
		}
	}
	return 0
}
