package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// CSVHeader is the column order used by ExportCSV.
var CSVHeader = []string{"name", "website", "info", "careers_url", "source", "source_url", "collected_at"}

// ExportCSV converts an NDJSON output file into CSV and returns the number
// of rows written.
func ExportCSV(inPath, outPath string) (int, error) {
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return 0, fmt.Errorf("create csv dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close() //nolint:errcheck // closed explicitly below on success

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	rows := 0
	for rec, err := range ReadJSONL(inPath) {
		if err != nil {
			return rows, err
		}
		if err := w.Write(csvRow(rec)); err != nil {
			return rows, fmt.Errorf("write csv row: %w", err)
		}
		rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return rows, fmt.Errorf("close %s: %w", outPath, err)
	}
	return rows, nil
}

func csvRow(rec harvest.NormalizedRecord) []string {
	careers := ""
	if rec.CareersURL != nil {
		careers = *rec.CareersURL
	}
	collected := ""
	if !rec.CollectedAt.IsZero() {
		collected = rec.CollectedAt.UTC().Format(time.RFC3339Nano)
	}
	return []string{rec.Name, rec.Website, rec.Info, careers, rec.Source, rec.SourceURL, collected}
}
