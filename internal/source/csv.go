package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// CSVAdapter reads delimited files with a header row.
type CSVAdapter struct {
	getter harvest.Getter
	logger *zap.Logger
}

// NewCSVAdapter creates a CSVAdapter.
func NewCSVAdapter(getter harvest.Getter, logger *zap.Logger) *CSVAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVAdapter{getter: getter, logger: logger}
}

// Records yields one record per data row. Rows that cannot be read or that
// hold none of the configured columns are reported as non-fatal ParseErrors.
func (a *CSVAdapter) Records(ctx context.Context, src harvest.SourceConfig) iter.Seq2[harvest.RawRecord, error] {
	return func(yield func(harvest.RawRecord, error) bool) {
		rc, location, err := openDocument(ctx, a.getter, src)
		if err != nil {
			yield(harvest.RawRecord{}, err)
			return
		}
		defer func() {
			if cerr := rc.Close(); cerr != nil {
				a.logger.Debug("failed to close csv source", zap.String("source", src.Name), zap.Error(cerr))
			}
		}()

		reader := csv.NewReader(rc)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		reader.LazyQuotes = true

		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(harvest.RawRecord{}, &harvest.ParseError{Location: location + " header", Fatal: true, Err: err})
			return
		}
		columns := columnIndex(header, src)

		for row := 2; ; row++ {
			if err := ctx.Err(); err != nil {
				yield(harvest.RawRecord{}, err)
				return
			}
			values, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if !yield(harvest.RawRecord{}, &harvest.ParseError{Location: fmt.Sprintf("%s row %d", location, row), Err: err}) {
					return
				}
				continue
			}

			fields := recordFields(func(canonical string) string {
				idx, ok := columns[canonical]
				if !ok || idx >= len(values) {
					return ""
				}
				return strings.TrimSpace(values[idx])
			})
			if len(fields) == 0 {
				parseErr := &harvest.ParseError{
					Location: fmt.Sprintf("%s row %d", location, row),
					Err:      errors.New("row has none of the configured columns"),
				}
				if !yield(harvest.RawRecord{}, parseErr) {
					return
				}
				continue
			}
			if !yield(harvest.RawRecord{Fields: fields, SourceURL: location, Source: &src}, nil) {
				return
			}
		}
	}
}

// columnIndex maps canonical fields to header positions. Header matching
// ignores case and surrounding whitespace.
func columnIndex(header []string, src harvest.SourceConfig) map[string]int {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}
	columns := make(map[string]int, len(harvest.CanonicalFields))
	for _, canonical := range harvest.CanonicalFields {
		key := strings.ToLower(src.FieldKey(canonical))
		if idx, ok := positions[key]; ok {
			columns[canonical] = idx
		}
	}
	return columns
}
