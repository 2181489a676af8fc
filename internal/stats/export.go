package stats

import (
	"fmt"
	"io"
	"sort"

	"github.com/unidoc/unioffice/spreadsheet"

	"github.com/example/surveybatch/internal/models"
)

// ExportWorkbook writes batch statistics as an xlsx workbook with a summary
// sheet and one sheet per equipment category.
func ExportWorkbook(batchName string, s *models.BatchStatistics, w io.Writer) error {
	wb := spreadsheet.New()
	defer wb.Close()

	summary := wb.AddSheet()
	summary.SetName("Summary")
	addTextRow(summary, "Batch", batchName)
	addNumberRow(summary, "Total projects", float64(s.TotalProjects))
	addNumberRow(summary, "Successful", float64(s.SuccessfulProjects))
	addNumberRow(summary, "Failed", float64(s.FailedProjects))
	addNumberRow(summary, "Processing time (s)", s.TotalProcessingSeconds)
	addNumberRow(summary, "Access points", float64(s.TotalAccessPoints))
	addNumberRow(summary, "Antennas", float64(s.TotalAntennas))

	aps := wb.AddSheet()
	aps.SetName("Access Points")
	header := aps.AddRow()
	header.AddCell().SetString("Vendor")
	header.AddCell().SetString("Model")
	header.AddCell().SetString("Quantity")
	for _, key := range sortedKeys(s.AccessPointModels) {
		vendor, model := splitAPKey(key)
		row := aps.AddRow()
		row.AddCell().SetString(vendor)
		row.AddCell().SetString(model)
		row.AddCell().SetNumber(float64(s.AccessPointModels[key]))
	}

	antennas := wb.AddSheet()
	antennas.SetName("Antennas")
	header = antennas.AddRow()
	header.AddCell().SetString("Model")
	header.AddCell().SetString("Quantity")
	for _, key := range sortedKeys(s.AntennaModels) {
		row := antennas.AddRow()
		row.AddCell().SetString(key)
		row.AddCell().SetNumber(float64(s.AntennaModels[key]))
	}

	if err := wb.Save(w); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func addTextRow(sheet spreadsheet.Sheet, label, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetString(value)
}

func addNumberRow(sheet spreadsheet.Sheet, label string, value float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetNumber(value)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitAPKey splits a "vendor|model" mapping key
func splitAPKey(key string) (vendor, model string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}
