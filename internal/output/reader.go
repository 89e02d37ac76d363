package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

const maxLineBytes = 4 << 20

// ReadJSONL yields the records of an NDJSON file in order. Blank lines are
// skipped; a malformed line ends the sequence with a ParseError.
func ReadJSONL(path string) iter.Seq2[harvest.NormalizedRecord, error] {
	return func(yield func(harvest.NormalizedRecord, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(harvest.NormalizedRecord{}, fmt.Errorf("open %s: %w", path, err))
			return
		}
		defer f.Close() //nolint:errcheck // read-only

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
		for line := 1; scanner.Scan(); line++ {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var rec harvest.NormalizedRecord
			if err := json.Unmarshal([]byte(text), &rec); err != nil {
				yield(harvest.NormalizedRecord{}, &harvest.ParseError{
					Location: fmt.Sprintf("%s line %d", path, line),
					Fatal:    true,
					Err:      err,
				})
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(harvest.NormalizedRecord{}, fmt.Errorf("read %s: %w", path, err))
		}
	}
}
