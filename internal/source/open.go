package source

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// openDocument returns a reader over the source document and the location
// recorded as source_url. Remote documents go through the gated getter.
func openDocument(ctx context.Context, getter harvest.Getter, src harvest.SourceConfig) (io.ReadCloser, string, error) {
	if src.Remote() {
		resp, err := getter.Get(ctx, harvest.GetRequest{URL: src.URL, MinInterval: src.RateLimit})
		if err != nil {
			return nil, src.URL, err
		}
		return io.NopCloser(bytes.NewReader(resp.Body)), src.URL, nil
	}
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, src.Path, &harvest.SourceFetchError{URL: src.Path, Err: err}
	}
	return f, src.Path, nil
}

// recordFields builds the canonical field map, dropping empty values.
func recordFields(lookup func(canonical string) string) map[string]string {
	fields := make(map[string]string, len(harvest.CanonicalFields))
	for _, canonical := range harvest.CanonicalFields {
		if v := lookup(canonical); v != "" {
			fields[canonical] = v
		}
	}
	return fields
}
