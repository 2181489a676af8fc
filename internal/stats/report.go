// Package stats reduces per-project report artifacts into batch-level
// equipment statistics.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/surveybatch/internal/storage"
)

const (
	// structuredSuffix names the preferred report format
	structuredSuffix = "_report.json"

	// Legacy tabular fallback files, one per equipment category
	accessPointSuffix = "_access_points.csv"
	antennaSuffix     = "_antennas.csv"

	reportsPrefix = "reports/"
)

// EquipmentEntry is one line of equipment extracted from a report
type EquipmentEntry struct {
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Quantity int    `json:"quantity"`
}

// ProjectEquipment is the equipment extracted from one project's report
type ProjectEquipment struct {
	AccessPoints []EquipmentEntry `json:"accessPoints"`
	Antennas     []EquipmentEntry `json:"antennas"`
	Floors       int              `json:"floors"`
	Buildings    int              `json:"buildings"`
}

// APKey builds the access-point mapping key
func APKey(vendor, model string) string {
	return vendor + "|" + model
}

// ReadProjectEquipment locates and parses a project's report output. The
// structured report is preferred; the legacy tabular files are a stable
// secondary format, not dead code. Returns storage.ErrNotFound when the
// project has neither artifact.
func ReadProjectEquipment(ctx context.Context, backend storage.Backend, namespace string) (*ProjectEquipment, error) {
	paths, err := backend.List(ctx, namespace, reportsPrefix, false)
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		if strings.HasSuffix(p, structuredSuffix) {
			data, err := backend.Get(ctx, namespace, p)
			if err != nil {
				return nil, err
			}
			return parseStructured(data)
		}
	}

	equipment := &ProjectEquipment{}
	found := false
	for _, p := range paths {
		var category *[]EquipmentEntry
		switch {
		case strings.HasSuffix(p, accessPointSuffix):
			category = &equipment.AccessPoints
		case strings.HasSuffix(p, antennaSuffix):
			category = &equipment.Antennas
		default:
			continue
		}
		data, err := backend.Get(ctx, namespace, p)
		if err != nil {
			return nil, err
		}
		entries, err := parseTabular(data)
		if err != nil {
			return nil, fmt.Errorf("parse tabular report %s: %w", p, err)
		}
		*category = append(*category, entries...)
		found = true
	}

	if !found {
		return nil, fmt.Errorf("no report artifact under %s: %w", namespace, storage.ErrNotFound)
	}
	return equipment, nil
}

// parseStructured decodes the preferred report format. Quantities default
// to 1 when absent or non-positive.
func parseStructured(data []byte) (*ProjectEquipment, error) {
	var equipment ProjectEquipment
	if err := json.Unmarshal(data, &equipment); err != nil {
		return nil, fmt.Errorf("parse structured report: %w", err)
	}
	for i := range equipment.AccessPoints {
		if equipment.AccessPoints[i].Quantity <= 0 {
			equipment.AccessPoints[i].Quantity = 1
		}
	}
	for i := range equipment.Antennas {
		if equipment.Antennas[i].Quantity <= 0 {
			equipment.Antennas[i].Quantity = 1
		}
	}
	return &equipment, nil
}

// TotalQuantity sums the quantities of a category
func TotalQuantity(entries []EquipmentEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Quantity
	}
	return total
}
