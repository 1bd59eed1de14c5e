package scancode

import (
	"fmt"
	"strconv"
	"strings"

	"moledger/internal/models"
)

// ParseItems decodes scanned batch text "order|part|qty|order|part|qty...".
// Half-width '|' and full-width '｜' both separate fields. The legacy
// two-field form "order|part" yields one item with quantity 0 for the
// operator to fill in. Triples with an empty field or a non-numeric quantity
// are skipped.
func ParseItems(text string) ([]models.BatchItem, error) {
	fields := splitBars(strings.TrimSpace(text))

	switch {
	case len(fields) == 2, len(fields) == 3 && !isInt(fields[2]):
		if fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("scan %q: order and part are required: %w", text, models.ErrInvalidInput)
		}
		return []models.BatchItem{{OrderNo: fields[0], PartNo: fields[1]}}, nil
	case len(fields) >= 3 && len(fields)%3 == 0:
		var items []models.BatchItem
		for i := 0; i < len(fields); i += 3 {
			qty, err := strconv.Atoi(fields[i+2])
			if fields[i] == "" || fields[i+1] == "" || err != nil {
				continue
			}
			items = append(items, models.BatchItem{OrderNo: fields[i], PartNo: fields[i+1], Quantity: qty})
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("scan %q: no complete order|part|qty entries: %w", text, models.ErrInvalidInput)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("scan %q: expected order|part|qty: %w", text, models.ErrInvalidInput)
	}
}

func splitBars(s string) []string {
	parts := strings.Split(strings.ReplaceAll(s, "｜", "|"), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
