// Package assets resolves part images from a keyed blob store.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"moledger/internal/models"
)

// Extensions are tried in order; the first hit wins.
var Extensions = []string{"jpg", "jpeg"}

// Store is a keyed blob lookup. A miss returns an error wrapping
// models.ErrNotFound.
type Store interface {
	GetBlob(ctx context.Context, partNo, ext string) ([]byte, error)
}

// Image is a resolved part image.
type Image struct {
	Key  string
	Ext  string
	Data []byte
}

// Resolve looks up {partNo}.jpg then {partNo}.jpeg. The returned error wraps
// models.ErrAssetUnavailable and carries a short reason.
func Resolve(ctx context.Context, s Store, partNo string) (Image, error) {
	if s == nil {
		return Image{}, fmt.Errorf("no asset store configured: %w", models.ErrAssetUnavailable)
	}
	if strings.TrimSpace(partNo) == "" {
		return Image{}, fmt.Errorf("empty part number: %w", models.ErrAssetUnavailable)
	}
	var lastErr error
	for _, ext := range Extensions {
		data, err := s.GetBlob(ctx, partNo, ext)
		if err == nil && len(data) > 0 {
			return Image{Key: partNo + "." + ext, Ext: ext, Data: data}, nil
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return Image{}, fmt.Errorf("image lookup failed: %v: %w", lastErr, models.ErrAssetUnavailable)
	}
	return Image{}, fmt.Errorf("image not found: %w", models.ErrAssetUnavailable)
}

// Dir serves blobs from a local directory as {root}/{partNo}.{ext}.
type Dir struct {
	Root string
}

func (d Dir) GetBlob(_ context.Context, partNo, ext string) ([]byte, error) {
	name := partNo + "." + ext
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid asset key %q: %w", name, models.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(d.Root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Memory is an in-process blob map keyed by "{partNo}.{ext}".
type Memory map[string][]byte

func (m Memory) GetBlob(_ context.Context, partNo, ext string) ([]byte, error) {
	data, ok := m[partNo+"."+ext]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", partNo, ext, models.ErrNotFound)
	}
	return data, nil
}
