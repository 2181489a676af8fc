package stats

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// parseTabular reads a legacy tabular report. Leading comment lines are
// skipped; the first non-comment line is the header row. The quantity
// column defaults to 1 on absent or unparseable values.
func parseTabular(data []byte) ([]EquipmentEntry, error) {
	lines := strings.Split(string(data), "\n")

	start := 0
	for start < len(lines) {
		trimmed := strings.TrimSpace(lines[start])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			start++
			continue
		}
		break
	}
	if start >= len(lines) {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[start:], "\n")))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tabular data: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	vendorCol, modelCol, quantityCol := -1, -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "vendor":
			vendorCol = i
		case "model":
			modelCol = i
		case "quantity", "qty":
			quantityCol = i
		}
	}
	if modelCol < 0 {
		return nil, fmt.Errorf("tabular header has no model column")
	}

	var entries []EquipmentEntry
	for _, row := range records[1:] {
		if len(row) <= modelCol || strings.TrimSpace(row[modelCol]) == "" {
			continue
		}
		entry := EquipmentEntry{
			Model:    strings.TrimSpace(row[modelCol]),
			Quantity: 1,
		}
		if vendorCol >= 0 && vendorCol < len(row) {
			entry.Vendor = strings.TrimSpace(row[vendorCol])
		}
		if quantityCol >= 0 && quantityCol < len(row) {
			if qty, err := strconv.Atoi(strings.TrimSpace(row[quantityCol])); err == nil && qty > 0 {
				entry.Quantity = qty
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
