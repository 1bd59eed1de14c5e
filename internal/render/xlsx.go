package render

import (
	"context"

	"moledger/internal/document"
)

// XLSX delivers the prepared workbook itself.
type XLSX struct{}

func (XLSX) Render(_ context.Context, doc *document.Document, opts Options) (Output, error) {
	data, err := prepare(doc, opts)
	if err != nil {
		return Output{}, err
	}
	return Output{
		FileName:    withExt(doc.FileName, ".xlsx"),
		ContentType: ContentTypeXLSX,
		Data:        data,
	}, nil
}
