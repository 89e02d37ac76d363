package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/pagination"
)

type stubGetter struct {
	bodies  map[string]string
	fetched []string
}

func (s *stubGetter) Get(_ context.Context, req harvest.GetRequest) (harvest.FetchResponse, error) {
	s.fetched = append(s.fetched, req.URL)
	body, ok := s.bodies[req.URL]
	if !ok {
		return harvest.FetchResponse{StatusCode: 404}, &harvest.SourceFetchError{URL: req.URL, StatusCode: 404}
	}
	return harvest.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type result struct {
	records []harvest.RawRecord
	errs    []error
}

func drain(seq func(func(harvest.RawRecord, error) bool)) result {
	var out result
	for rec, err := range seq {
		if err != nil {
			out.errs = append(out.errs, err)
			continue
		}
		out.records = append(out.records, rec)
	}
	return out
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewDefaultRegistry(&stubGetter{}, pagination.New(&stubGetter{}, nil), nil)
	for _, kind := range []harvest.SourceType{
		harvest.SourceTypeCSV, harvest.SourceTypeJSON, harvest.SourceTypeDirectory, harvest.SourceTypeFeed,
		harvest.SourceTypeYCLocation,
	} {
		adapter, err := reg.Adapter(kind)
		require.NoError(t, err)
		require.NotNil(t, adapter)
	}

	_, err := reg.Adapter("xml")
	var cfgErr *harvest.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestOpenDocumentMissingFile(t *testing.T) {
	t.Parallel()

	adapter := NewCSVAdapter(nil, nil)
	out := drain(adapter.Records(context.Background(), harvest.SourceConfig{
		Name: "missing", Type: harvest.SourceTypeCSV, Path: filepath.Join(t.TempDir(), "nope.csv"),
	}))
	require.Empty(t, out.records)
	require.Len(t, out.errs, 1)
	var fetchErr *harvest.SourceFetchError
	require.ErrorAs(t, out.errs[0], &fetchErr)
	require.True(t, harvest.IsFatal(out.errs[0]))
}
