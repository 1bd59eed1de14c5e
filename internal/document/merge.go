package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"moledger/internal/assets"
	"moledger/internal/models"
	"moledger/internal/scancode"
)

// fetchLimit caps concurrent asset lookups for one document.
const fetchLimit = 4

// Engine fills template pages from MO records.
type Engine struct {
	Assets    assets.Store
	ScanCodes scancode.Renderer
	// QRSize is the edge length requested from the scan-code service.
	QRSize   int
	Location *time.Location
	Logger   *log.Logger
}

// RecordAssets holds the pictures fetched for one record. Failures are kept
// as values so a page can still be produced without them.
type RecordAssets struct {
	Image    assets.Image
	ImageErr error
	QR       []byte
	QRErr    error
}

// MergeResult reports what was filled on one page.
type MergeResult struct {
	MOID          string   `json:"moId"`
	ImageInserted bool     `json:"imageInserted"`
	ImageNote     string   `json:"imageNote,omitempty"`
	QRInserted    bool     `json:"qrInserted"`
	Warnings      []string `json:"warnings,omitempty"`
}

type tokenCell struct {
	cell  string
	value string
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Fetch resolves the part image and scan code of rec concurrently.
func (e *Engine) Fetch(ctx context.Context, rec models.MORecord) RecordAssets {
	var a RecordAssets
	var g errgroup.Group
	g.Go(func() error {
		a.Image, a.ImageErr = assets.Resolve(ctx, e.Assets, rec.PartNo)
		return nil
	})
	g.Go(func() error {
		if e.ScanCodes == nil {
			a.QRErr = fmt.Errorf("no scan-code renderer configured: %w", models.ErrExternalService)
			return nil
		}
		size := e.QRSize
		if size <= 0 {
			size = scancode.DefaultSize
		}
		a.QR, a.QRErr = e.ScanCodes.Render(ctx, rec.MOID, size)
		return nil
	})
	_ = g.Wait()
	return a
}

// FetchAll resolves assets for every record, index-aligned with recs.
func (e *Engine) FetchAll(ctx context.Context, recs []models.MORecord) []RecordAssets {
	out := make([]RecordAssets, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i := range recs {
		i := i
		g.Go(func() error {
			out[i] = e.Fetch(gctx, recs[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Fill replaces every token on sheet with values from rec and inserts the
// fetched pictures. Cells without tokens are left untouched. Missing assets
// never fail the merge; only an unreadable page does.
func (e *Engine) Fill(f *excelize.File, sheet string, rec models.MORecord, a RecordAssets, b Bounds) (MergeResult, error) {
	res := MergeResult{MOID: rec.MOID}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return res, fmt.Errorf("read page %q: %v: %w", sheet, err, models.ErrTemplateStructure)
	}

	repl := newReplacer(TextValues(rec, e.Location))
	var pictureCells []tokenCell
	for r, row := range rows {
		for c, raw := range row {
			if !strings.Contains(raw, "{{") {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return res, err
			}
			val := repl.Replace(raw)
			if val != raw {
				if err := f.SetCellValue(sheet, cell, val); err != nil {
					return res, fmt.Errorf("set %s!%s: %w", sheet, cell, err)
				}
			}
			if imageToken.MatchString(val) || qrToken.MatchString(val) {
				pictureCells = append(pictureCells, tokenCell{cell, val})
			}
		}
	}

	// A cell may carry both picture tokens; each step works on the value
	// the previous one left behind.
	for _, tc := range pictureCells {
		val := tc.value
		if imageToken.MatchString(val) {
			var note string
			val, note = e.placeImage(f, sheet, tc.cell, val, a, b)
			if note == "" {
				res.ImageInserted = true
			} else {
				res.ImageNote = note
			}
		}
		if qrToken.MatchString(val) {
			var warn string
			val, warn = e.placeQR(f, sheet, tc.cell, val, rec.MOID, a)
			if warn == "" {
				res.QRInserted = true
			} else {
				res.Warnings = append(res.Warnings, warn)
			}
		}
		if err := f.SetCellValue(sheet, tc.cell, val); err != nil {
			return res, fmt.Errorf("set %s!%s: %w", sheet, tc.cell, err)
		}
	}
	return res, nil
}

// placeImage returns the cell text with the image token resolved and a
// non-empty note when the fallback marker was used.
func (e *Engine) placeImage(f *excelize.File, sheet, cell, value string, a RecordAssets, b Bounds) (string, string) {
	reason := ""
	if a.ImageErr != nil {
		reason = assetReason(a.ImageErr)
	} else {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(a.Image.Data))
		if err != nil {
			reason = "unreadable image"
		} else {
			size := b.Fit(cfg.Width, cfg.Height)
			err = insertPicture(f, sheet, cell, a.Image.Data, format, size.Scale, size.Scale, a.Image.Key)
			if err == nil {
				return strings.TrimSpace(imageToken.ReplaceAllString(value, "")), ""
			}
			reason = "insert failed: " + err.Error()
		}
	}
	marker := fmt.Sprintf("(no image: %s)", reason)
	return imageToken.ReplaceAllString(value, marker), marker
}

// placeQR returns the cell text without the scan-code token and a non-empty
// warning when the scan code was left out.
func (e *Engine) placeQR(f *excelize.File, sheet, cell, value, moID string, a RecordAssets) (string, string) {
	rest := strings.TrimSpace(qrToken.ReplaceAllString(value, ""))
	warn := ""
	if a.QRErr != nil {
		warn = fmt.Sprintf("scan code for %s unavailable: %v", moID, a.QRErr)
	} else {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(a.QR))
		if err != nil {
			warn = fmt.Sprintf("scan code for %s unreadable: %v", moID, err)
		} else {
			sx := float64(QRDisplaySize) / float64(cfg.Width)
			sy := float64(QRDisplaySize) / float64(cfg.Height)
			err = insertPicture(f, sheet, cell, a.QR, format, sx, sy, moID)
			if err == nil {
				return rest, ""
			}
			warn = fmt.Sprintf("scan code for %s not inserted: %v", moID, err)
		}
	}
	e.logger().Printf("WARN: %s", warn)
	return rest, warn
}

func insertPicture(f *excelize.File, sheet, cell string, data []byte, format string, sx, sy float64, alt string) error {
	return f.AddPictureFromBytes(sheet, cell, &excelize.Picture{
		Extension: "." + format,
		File:      data,
		Format: &excelize.GraphicOptions{
			AltText:         alt,
			ScaleX:          sx,
			ScaleY:          sy,
			LockAspectRatio: true,
		},
	})
}

func assetReason(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+models.ErrAssetUnavailable.Error())
}
