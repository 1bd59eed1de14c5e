package testutil

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"moledger/internal/models"
	"moledger/internal/store"
)

// SetupStore opens a fresh sqlite store in a temp directory. A file database
// is used instead of :memory: so every pooled connection sees the same data.
func SetupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "mo_test.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Product returns a catalog entry with n defined stations.
func Product(partNo string, n int) models.CatalogEntry {
	var list []models.StationSpec
	names := []string{"Cutting", "Bending", "Welding", "Grinding", "Drilling", "Tapping", "Painting", "Assembly", "Inspection"}
	for i := 0; i < n && i < len(names); i++ {
		list = append(list, models.StationSpec{Name: names[i], StandardTimeSeconds: float64(30 * (i + 1))})
	}
	return models.CatalogEntry{
		PartNo:         partNo,
		Name:           "Bracket " + partNo,
		CustomerPartNo: "C-" + partNo,
		Material:       "SUS304",
		Stations:       models.StationsFrom(list),
		Model:          "M-100",
	}
}

// SeedProducts upserts the given catalog entries.
func SeedProducts(t *testing.T, s *store.Store, entries ...models.CatalogEntry) {
	t.Helper()
	for _, e := range entries {
		if err := s.UpsertProduct(context.Background(), e); err != nil {
			t.Fatalf("Failed to seed product %s: %v", e.PartNo, err)
		}
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) models.APIResponse {
	t.Helper()
	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("Failed to decode envelope data: %v", err)
		}
	}
	return models.APIResponse{Status: env.Status, Message: env.Message}
}
