package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

func TestCSVAdapterLocalFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "orgs.csv", "name,website,info\nAcme,acme.com,widgets\n  Globex , globex.com ,\n")
	src := harvest.SourceConfig{Name: "local", Type: harvest.SourceTypeCSV, Path: path}

	out := drain(NewCSVAdapter(nil, nil).Records(context.Background(), src))
	require.Empty(t, out.errs)
	require.Len(t, out.records, 2)

	first := out.records[0]
	require.Equal(t, "Acme", first.Get(harvest.FieldName))
	require.Equal(t, "acme.com", first.Get(harvest.FieldWebsite))
	require.Equal(t, "widgets", first.Get(harvest.FieldInfo))
	require.Equal(t, path, first.SourceURL)
	require.Equal(t, "local", first.Source.Name)

	second := out.records[1]
	require.Equal(t, "Globex", second.Get(harvest.FieldName))
	require.Empty(t, second.Get(harvest.FieldInfo))
}

func TestCSVAdapterMappedColumnsAndBadRows(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "orgs.csv", "\ufeffCompany,URL,Notes\nInitech,initech.com,software\n,,\nUmbrella\n")
	src := harvest.SourceConfig{
		Name:    "mapped",
		Type:    harvest.SourceTypeCSV,
		Path:    path,
		Columns: map[string]string{"name": "company", "website": "url", "info": "notes"},
	}

	out := drain(NewCSVAdapter(nil, nil).Records(context.Background(), src))
	require.Len(t, out.records, 2)
	require.Equal(t, "Initech", out.records[0].Get(harvest.FieldName))
	require.Equal(t, "initech.com", out.records[0].Get(harvest.FieldWebsite))
	require.Equal(t, "Umbrella", out.records[1].Get(harvest.FieldName), "short rows keep the columns they have")

	require.Len(t, out.errs, 1, "an empty row is a warning")
	var parseErr *harvest.ParseError
	require.ErrorAs(t, out.errs[0], &parseErr)
	require.False(t, parseErr.Fatal)
	require.Contains(t, parseErr.Location, "row 3")
}

func TestCSVAdapterRemote(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{bodies: map[string]string{
		"https://data.example.org/orgs.csv": "name,website\nHooli,hooli.xyz\n",
	}}
	src := harvest.SourceConfig{Name: "remote", Type: harvest.SourceTypeCSV, URL: "https://data.example.org/orgs.csv"}

	out := drain(NewCSVAdapter(getter, nil).Records(context.Background(), src))
	require.Empty(t, out.errs)
	require.Len(t, out.records, 1)
	require.Equal(t, "https://data.example.org/orgs.csv", out.records[0].SourceURL)
}

func TestCSVAdapterEmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.csv", "")
	out := drain(NewCSVAdapter(nil, nil).Records(context.Background(), harvest.SourceConfig{
		Name: "empty", Type: harvest.SourceTypeCSV, Path: path,
	}))
	require.Empty(t, out.records)
	require.Empty(t, out.errs)
}

func TestCSVAdapterIsLazy(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "orgs.csv", "name\na\nb\nc\n")
	var seen []string
	for rec, err := range NewCSVAdapter(nil, nil).Records(context.Background(), harvest.SourceConfig{
		Name: "lazy", Type: harvest.SourceTypeCSV, Path: path,
	}) {
		require.NoError(t, err)
		seen = append(seen, rec.Get(harvest.FieldName))
		if len(seen) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a", "b"}, seen)
}
