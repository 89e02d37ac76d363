package politeness

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/org-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/org-harvester/internal/harvest"
)

type stubGate struct {
	err   error
	calls int
	last  time.Duration
}

func (s *stubGate) Acquire(_ context.Context, _ string, minInterval time.Duration) (harvest.Permit, error) {
	s.calls++
	s.last = minInterval
	return harvest.Permit{}, s.err
}

type stubFetcher struct {
	resp     harvest.FetchResponse
	err      error
	calls    int
	deadline bool
}

func (s *stubFetcher) Fetch(ctx context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	s.calls++
	_, s.deadline = ctx.Deadline()
	if s.err != nil {
		return harvest.FetchResponse{}, s.err
	}
	resp := s.resp
	resp.URL = req.URL
	return resp, nil
}

func TestClientGetSuccess(t *testing.T) {
	t.Parallel()

	gate := &stubGate{}
	fetcher := &stubFetcher{resp: harvest.FetchResponse{StatusCode: http.StatusOK, Body: []byte("ok")}}
	client := NewClient(gate, fetcher, time.Second, nil)

	resp, err := client.Get(context.Background(), harvest.GetRequest{URL: "https://example.com", MinInterval: 2 * time.Second})
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, 2*time.Second, gate.last)
	require.True(t, fetcher.deadline, "fetch runs under a timeout")
}

func TestClientGetDeniedSkipsFetch(t *testing.T) {
	t.Parallel()

	gate := &stubGate{err: &harvest.PolicyDeniedError{Host: "example.com", Path: "/directory", Reason: "robots"}}
	fetcher := &stubFetcher{}
	client := NewClient(gate, fetcher, time.Second, nil)

	_, err := client.Get(context.Background(), harvest.GetRequest{URL: "https://example.com/directory"})
	require.True(t, harvest.IsPolicyDenied(err))
	require.Zero(t, fetcher.calls)
}

func TestClientGetErrorStatus(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: harvest.FetchResponse{StatusCode: http.StatusNotFound}}
	client := NewClient(&stubGate{}, fetcher, time.Second, nil)

	resp, err := client.Get(context.Background(), harvest.GetRequest{URL: "https://example.com/missing"})
	var fetchErr *harvest.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClientGetTransportError(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: context.DeadlineExceeded}
	client := NewClient(&stubGate{}, fetcher, time.Second, nil)

	_, err := client.Get(context.Background(), harvest.GetRequest{URL: "https://example.com/slow"})
	var fetchErr *harvest.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

// redirectSite serves robots.txt disallowing /private and a few redirects,
// counting hits per path.
func redirectSite(t *testing.T) (*httptest.Server, func(string) int) {
	t.Helper()
	var (
		mu   sync.Mutex
		hits = make(map[string]int)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case "/careers":
			http.Redirect(w, r, "/private/jobs", http.StatusFound)
		case "/old":
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><title>" + r.URL.Path + "</title></html>"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func(path string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[path]
	}
}

func newRedirectClient() *Client {
	gate := newTestGate(Config{}, nil)
	return NewClient(gate, collyfetcher.New(collyfetcher.Config{UserAgent: testAgent}), 5*time.Second, nil)
}

func TestClientGetRedirectIntoDisallowedPath(t *testing.T) {
	t.Parallel()

	srv, hits := redirectSite(t)
	client := newRedirectClient()

	_, err := client.Get(context.Background(), harvest.GetRequest{URL: srv.URL + "/careers"})
	require.True(t, harvest.IsPolicyDenied(err), "got %v", err)
	require.Equal(t, 1, hits("/careers"))
	require.Zero(t, hits("/private/jobs"))
}

func TestClientGetFollowsAllowedRedirect(t *testing.T) {
	t.Parallel()

	srv, hits := redirectSite(t)
	client := newRedirectClient()

	resp, err := client.Get(context.Background(), harvest.GetRequest{URL: srv.URL + "/old"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, srv.URL+"/old", resp.URL)
	require.Equal(t, srv.URL+"/new", resp.FinalURL)
	require.Equal(t, 1, hits("/new"))
}

func TestClientGetGatesEveryHop(t *testing.T) {
	t.Parallel()

	fetcher := &sequenceFetcher{responses: []harvest.FetchResponse{
		{StatusCode: http.StatusFound, Headers: http.Header{"Location": {"https://other.example/jobs"}}},
		{StatusCode: http.StatusOK},
	}}
	gate := &recordingGate{}
	client := NewClient(gate, fetcher, time.Second, nil)

	resp, err := client.Get(context.Background(), harvest.GetRequest{URL: "https://example.com/careers"})
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/careers", "https://other.example/jobs"}, gate.urls)
	require.Equal(t, "https://other.example/jobs", resp.FinalURL)
}

func TestClientGetStopsRedirectLoop(t *testing.T) {
	t.Parallel()

	srv, hits := redirectSite(t)
	client := newRedirectClient()

	_, err := client.Get(context.Background(), harvest.GetRequest{URL: srv.URL + "/loop"})
	require.ErrorIs(t, err, errTooManyRedirects)
	require.Equal(t, maxRedirects+1, hits("/loop"))
}

type recordingGate struct {
	urls []string
}

func (g *recordingGate) Acquire(_ context.Context, rawURL string, _ time.Duration) (harvest.Permit, error) {
	g.urls = append(g.urls, rawURL)
	return harvest.Permit{}, nil
}

type sequenceFetcher struct {
	responses []harvest.FetchResponse
	next      int
}

func (s *sequenceFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	resp := s.responses[s.next]
	s.next++
	resp.URL = req.URL
	return resp, nil
}
