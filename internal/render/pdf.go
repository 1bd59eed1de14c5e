package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"moledger/internal/document"
	"moledger/internal/models"
)

// maxPDFSize bounds the converter response.
const maxPDFSize = 64 << 20

// PDF posts the prepared workbook to an office-conversion service as a
// multipart form (field "files") and returns the PDF it answers with.
// Gotenberg's /forms/libreoffice/convert route speaks this protocol.
type PDF struct {
	URL        string
	httpClient *http.Client
}

// NewPDF returns a converter client for url.
func NewPDF(url string, timeout time.Duration) *PDF {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PDF{URL: url, httpClient: &http.Client{Timeout: timeout}}
}

func (p *PDF) Render(ctx context.Context, doc *document.Document, opts Options) (Output, error) {
	data, err := prepare(doc, opts)
	if err != nil {
		return Output{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", withExt(doc.FileName, ".xlsx"))
	if err != nil {
		return Output{}, fmt.Errorf("build form: %v: %w", err, models.ErrRender)
	}
	if _, err := part.Write(data); err != nil {
		return Output{}, fmt.Errorf("build form: %v: %w", err, models.ErrRender)
	}
	if opts.Landscape {
		mw.WriteField("landscape", "true")
	}
	if err := mw.Close(); err != nil {
		return Output{}, fmt.Errorf("build form: %v: %w", err, models.ErrRender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, &body)
	if err != nil {
		return Output{}, fmt.Errorf("converter request: %v: %w", err, models.ErrRender)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("converter request: %v: %w", err, models.ErrRender)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Output{}, fmt.Errorf("converter returned %d: %s: %w", resp.StatusCode, bytes.TrimSpace(msg), models.ErrRender)
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize))
	if err != nil {
		return Output{}, fmt.Errorf("read converter response: %v: %w", err, models.ErrRender)
	}
	if len(pdf) == 0 {
		return Output{}, fmt.Errorf("converter returned an empty body: %w", models.ErrRender)
	}
	return Output{FileName: withExt(doc.FileName, ".pdf"), ContentType: ContentTypePDF, Data: pdf}, nil
}
