package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/pagination"
)

const directoryPage1 = `<html><body>
<div class="card"><h3> Acme  Corp </h3><a class="site" href="https://acme.com">site</a><p class="blurb">Widgets
 and gadgets</p></div>
<div class="card"><h3>Globex</h3><a class="site" href="/members/globex">profile</a></div>
<div class="card"></div>
<a class="next" href="?page=2">Next</a>
</body></html>`

const directoryPage2 = `<html><body>
<div class="card"><h3>Initech</h3><span class="site">initech.com</span></div>
</body></html>`

func directorySource(next string) harvest.SourceConfig {
	return harvest.SourceConfig{
		Name: "dir",
		Type: harvest.SourceTypeDirectory,
		URL:  "https://dir.example.org/members",
		Selectors: harvest.Selectors{
			Item:     ".card",
			Name:     "h3",
			Website:  ".site",
			Info:     "p.blurb",
			NextPage: next,
		},
	}
}

func TestDirectoryAdapterFollowsPages(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{bodies: map[string]string{
		"https://dir.example.org/members":        directoryPage1,
		"https://dir.example.org/members?page=2": directoryPage2,
	}}
	adapter := NewDirectoryAdapter(pagination.New(getter, nil), nil)

	out := drain(adapter.Records(context.Background(), directorySource("a.next")))
	require.Empty(t, out.errs)
	require.Len(t, out.records, 3)

	require.Equal(t, "Acme Corp", out.records[0].Get(harvest.FieldName))
	require.Equal(t, "https://acme.com", out.records[0].Get(harvest.FieldWebsite))
	require.Equal(t, "Widgets and gadgets", out.records[0].Get(harvest.FieldInfo))
	require.Equal(t, "https://dir.example.org/members/globex", out.records[1].Get(harvest.FieldWebsite))
	require.Equal(t, "initech.com", out.records[2].Get(harvest.FieldWebsite))
	require.Equal(t, "https://dir.example.org/members?page=2", out.records[2].SourceURL)
}

func TestDirectoryAdapterWithoutNextSelectorReadsOnePage(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{bodies: map[string]string{
		"https://dir.example.org/members": directoryPage1,
	}}
	adapter := NewDirectoryAdapter(pagination.New(getter, nil), nil)

	out := drain(adapter.Records(context.Background(), directorySource("")))
	require.Empty(t, out.errs)
	require.Len(t, out.records, 2)
	require.Equal(t, []string{"https://dir.example.org/members"}, getter.fetched)
}

func TestDirectoryAdapterFirstPageFailure(t *testing.T) {
	t.Parallel()

	adapter := NewDirectoryAdapter(pagination.New(&stubGetter{}, nil), nil)
	out := drain(adapter.Records(context.Background(), directorySource("a.next")))
	require.Empty(t, out.records)
	require.Len(t, out.errs, 1)
	require.True(t, harvest.IsFatal(out.errs[0]))
}
