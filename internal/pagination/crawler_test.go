package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

type page struct {
	body string
	err  error
	// final is the URL the request was redirected to, if any.
	final string
}

type stubGetter struct {
	pages   map[string]page
	fetched []string
}

func (s *stubGetter) Get(_ context.Context, req harvest.GetRequest) (harvest.FetchResponse, error) {
	s.fetched = append(s.fetched, req.URL)
	p, ok := s.pages[req.URL]
	if !ok {
		return harvest.FetchResponse{}, &harvest.SourceFetchError{URL: req.URL, StatusCode: 404}
	}
	if p.err != nil {
		return harvest.FetchResponse{}, p.err
	}
	final := req.URL
	if p.final != "" {
		final = p.final
	}
	return harvest.FetchResponse{URL: req.URL, FinalURL: final, StatusCode: 200, Body: []byte(p.body)}, nil
}

// lineExtractor reads "item:<name>" and "next:<href>" lines; "bad" fails parsing.
func lineExtractor(_ string, body []byte) ([]harvest.RawRecord, string, error) {
	var (
		items []harvest.RawRecord
		next  string
	)
	for _, line := range strings.Split(string(body), "\n") {
		switch {
		case line == "bad":
			return nil, "", errors.New("unreadable page")
		case strings.HasPrefix(line, "item:"):
			items = append(items, harvest.RawRecord{Fields: map[string]string{harvest.FieldName: strings.TrimPrefix(line, "item:")}})
		case strings.HasPrefix(line, "next:"):
			next = strings.TrimPrefix(line, "next:")
		}
	}
	return items, next, nil
}

func collect(seq func(func(harvest.RawRecord, error) bool)) ([]string, []error) {
	var (
		names []string
		errs  []error
	)
	for rec, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, rec.Get(harvest.FieldName))
	}
	return names, errs
}

const base = "https://dir.example.com"

func TestCrawlFollowsNextUntilNone(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/list":        {body: "item:a\nitem:b\nnext:/list?page=2"},
		base + "/list?page=2": {body: "item:c\nnext:list?page=3"},
		base + "/list?page=3": {body: "item:d"},
	}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{Source: "dir", StartURL: base + "/list"}, lineExtractor)

	names, errs := collect(seq)
	require.Empty(t, errs)
	require.Equal(t, []string{"a", "b", "c", "d"}, names)
	require.Equal(t, PhaseDone, state.Phase)
	require.Equal(t, ReasonNoNext, state.Reason)
	require.Len(t, state.PagesVisited, 3)
	require.Equal(t, 4, state.ItemsEmitted)
}

func TestCrawlStopsOnCycle(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/a": {body: "item:1\nnext:/b"},
		base + "/b": {body: "item:2\nnext:HTTPS://DIR.EXAMPLE.COM:443/a#top"},
	}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/a"}, lineExtractor)

	names, errs := collect(seq)
	require.Empty(t, errs)
	require.Equal(t, []string{"1", "2"}, names)
	require.Equal(t, ReasonCycle, state.Reason)
	require.Len(t, getter.fetched, 2, "no page is fetched twice")
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	t.Parallel()

	pages := make(map[string]page)
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprintf("%s/p%d", base, i)] = page{body: fmt.Sprintf("item:%d\nnext:/p%d", i, i+1)}
	}
	getter := &stubGetter{pages: pages}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/p1", MaxPages: 3}, lineExtractor)

	names, errs := collect(seq)
	require.Empty(t, errs)
	require.Equal(t, []string{"1", "2", "3"}, names)
	require.Equal(t, ReasonMaxPages, state.Reason)
	require.Len(t, getter.fetched, 3)
}

func TestCrawlSinglePageWithoutNext(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{base + "/only": {body: "item:x"}}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/only"}, lineExtractor)

	names, errs := collect(seq)
	require.Empty(t, errs)
	require.Equal(t, []string{"x"}, names)
	require.Equal(t, ReasonNoNext, state.Reason)
}

func TestCrawlMidCrawlFailureIsPartial(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/1": {body: "item:kept\nnext:/2"},
		base + "/2": {err: &harvest.SourceFetchError{URL: base + "/2", StatusCode: 500}},
	}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/1"}, lineExtractor)

	names, errs := collect(seq)
	require.Equal(t, []string{"kept"}, names)
	require.Len(t, errs, 1)
	var partial *harvest.PartialResultError
	require.ErrorAs(t, errs[0], &partial)
	require.Equal(t, 1, partial.PagesVisited)
	require.Equal(t, 1, partial.ItemsEmitted)
	require.False(t, harvest.IsFatal(errs[0]))
	require.Equal(t, ReasonFailed, state.Reason)
}

func TestCrawlLaterDenialIsPartial(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/1":       {body: "item:kept\nnext:/private"},
		base + "/private": {err: &harvest.PolicyDeniedError{Host: "dir.example.com", Path: "/private", Reason: "robots"}},
	}}
	seq, _ := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/1"}, lineExtractor)

	_, errs := collect(seq)
	require.Len(t, errs, 1)
	require.False(t, harvest.IsFatal(errs[0]))
	require.True(t, harvest.IsPolicyDenied(errs[0]))
}

func TestCrawlFirstPageFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		page   page
		assert func(t *testing.T, err error)
	}{
		{
			name: "denied",
			page: page{err: &harvest.PolicyDeniedError{Host: "dir.example.com", Path: "/directory", Reason: "robots"}},
			assert: func(t *testing.T, err error) {
				var denied *harvest.PolicyDeniedError
				require.ErrorAs(t, err, &denied)
			},
		},
		{
			name: "unparseable",
			page: page{body: "bad"},
			assert: func(t *testing.T, err error) {
				var parseErr *harvest.ParseError
				require.ErrorAs(t, err, &parseErr)
				require.True(t, parseErr.Fatal)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			getter := &stubGetter{pages: map[string]page{base + "/directory": tc.page}}
			seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/directory"}, lineExtractor)
			names, errs := collect(seq)
			require.Empty(t, names)
			require.Len(t, errs, 1)
			require.True(t, harvest.IsFatal(errs[0]))
			tc.assert(t, errs[0])
			require.Equal(t, ReasonFailed, state.Reason)
		})
	}
}

func TestCrawlIsLazyAndStopsOnBreak(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/1": {body: "item:a\nitem:b\nnext:/2"},
		base + "/2": {body: "item:c"},
	}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/1"}, lineExtractor)
	require.Empty(t, getter.fetched)

	for range seq {
		break
	}
	require.Len(t, getter.fetched, 1)
	require.Equal(t, ReasonCanceled, state.Reason)
}

func TestCrawlCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	getter := &stubGetter{pages: map[string]page{base + "/1": {body: "item:a"}}}
	seq, state := New(getter, nil).Crawl(ctx, Request{StartURL: base + "/1"}, lineExtractor)

	_, errs := collect(seq)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], context.Canceled)
	require.Empty(t, getter.fetched)
	require.Equal(t, ReasonCanceled, state.Reason)
}

func TestCrawlStopsWhenRedirectedToVisitedPage(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/a": {body: "item:1\nnext:/b"},
		base + "/b": {body: "item:1\nnext:/b", final: base + "/a"},
	}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/a"}, lineExtractor)

	names, errs := collect(seq)
	require.Empty(t, errs)
	require.Equal(t, []string{"1"}, names)
	require.Equal(t, ReasonCycle, state.Reason)
	require.Len(t, getter.fetched, 2)
}

func TestCrawlTreatsRedirectTargetAsVisited(t *testing.T) {
	t.Parallel()

	getter := &stubGetter{pages: map[string]page{
		base + "/a":   {body: "item:1\nnext:/old"},
		base + "/old": {body: "item:2\nnext:/new", final: base + "/new"},
		base + "/new": {body: "item:3"},
	}}
	seq, state := New(getter, nil).Crawl(context.Background(), Request{StartURL: base + "/a"}, lineExtractor)

	names, errs := collect(seq)
	require.Empty(t, errs)
	require.Equal(t, []string{"1", "2"}, names)
	require.Equal(t, ReasonCycle, state.Reason)
	require.True(t, state.Visited(base+"/new"))
	require.Len(t, state.PagesVisited, 2)
	require.Equal(t, []string{base + "/a", base + "/old"}, getter.fetched)
}

func TestCrawlYieldsExtractedItemsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	getter := &stubGetter{pages: map[string]page{
		base + "/1": {body: "item:a\nitem:b\nitem:c\nnext:/2"},
		base + "/2": {body: "item:d"},
	}}
	seq, state := New(getter, nil).Crawl(ctx, Request{StartURL: base + "/1"}, lineExtractor)

	var (
		names []string
		errs  []error
	)
	for rec, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, rec.Get(harvest.FieldName))
		cancel()
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], context.Canceled)
	require.Equal(t, []string{base + "/1"}, getter.fetched)
	require.Equal(t, ReasonCanceled, state.Reason)
}
