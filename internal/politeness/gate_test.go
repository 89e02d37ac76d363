package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

const testAgent = "OrgHarvesterTest/1.0"

func robotsServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if hits != nil {
				hits.Add(1)
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGate(cfg Config, client *http.Client) *Gate {
	if cfg.UserAgent == "" {
		cfg.UserAgent = testAgent
	}
	if cfg.DefaultInterval == 0 {
		cfg.DefaultInterval = time.Millisecond
	}
	return NewGate(cfg, NewRegistry(), client, nil, zap.NewNop())
}

func TestGateSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, http.StatusOK, "User-agent: *\nAllow: /\n", nil)
	gate := newTestGate(Config{}, nil)
	const interval = 60 * time.Millisecond

	var (
		mu      sync.Mutex
		granted []time.Time
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			permit, err := gate.Acquire(context.Background(), fmt.Sprintf("%s/page/%d", srv.URL, i), interval)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			granted = append(granted, permit.GrantedAt)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Slice(granted, func(i, j int) bool { return granted[i].Before(granted[j]) })
	for i := 1; i < len(granted); i++ {
		require.GreaterOrEqual(t, granted[i].Sub(granted[i-1]), interval)
	}
}

func TestGateDeniesDisallowedPath(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /directory\n", nil)
	gate := newTestGate(Config{}, nil)

	_, err := gate.Acquire(context.Background(), srv.URL+"/directory?page=2", time.Millisecond)
	var denied *harvest.PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "/directory?page=2", denied.Path)

	permit, err := gate.Acquire(context.Background(), srv.URL+"/about", time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "/about", permit.Path)
}

func TestGateFetchesRobotsOncePerHost(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := robotsServer(t, http.StatusOK, "User-agent: *\nAllow: /\n", &hits)
	gate := newTestGate(Config{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := gate.Acquire(context.Background(), fmt.Sprintf("%s/p%d", srv.URL, i), time.Millisecond)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), hits.Load())
}

func TestGateRobotsStatusHandling(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		status  int
		allowed bool
	}{
		{"missing robots allows", http.StatusNotFound, true},
		{"unauthorized denies", http.StatusUnauthorized, false},
		{"forbidden denies", http.StatusForbidden, false},
		{"server error denies", http.StatusServiceUnavailable, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := robotsServer(t, tc.status, "", nil)
			gate := newTestGate(Config{}, nil)
			_, err := gate.Acquire(context.Background(), srv.URL+"/list", time.Millisecond)
			if tc.allowed {
				require.NoError(t, err)
				return
			}
			require.True(t, harvest.IsPolicyDenied(err), "got %v", err)
		})
	}
}

type failingTransport struct {
	calls atomic.Int32
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestGateRobotsTransportFailure(t *testing.T) {
	t.Parallel()

	lenient := newTestGate(Config{}, &http.Client{Transport: &failingTransport{}})
	_, err := lenient.Acquire(context.Background(), "https://unreachable.example/jobs", time.Millisecond)
	require.NoError(t, err, "transport failure fails open by default")

	strict := newTestGate(Config{StrictRobots: true}, &http.Client{Transport: &failingTransport{}})
	_, err = strict.Acquire(context.Background(), "https://unreachable.example/jobs", time.Millisecond)
	require.True(t, harvest.IsPolicyDenied(err))
}

func TestGateCrawlDelayIsCapped(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 5\n", nil)
	gate := newTestGate(Config{MaxCrawlDelay: 40 * time.Millisecond}, nil)

	_, err := gate.Acquire(context.Background(), srv.URL+"/a", time.Millisecond)
	require.NoError(t, err)
	_, err = gate.Acquire(context.Background(), srv.URL+"/b", time.Millisecond)
	require.NoError(t, err)

	hosts := gate.Registry().Hosts()
	require.Len(t, hosts, 1)
	require.Equal(t, 40*time.Millisecond, gate.Registry().Budget(hosts[0]).MinInterval())
}

func TestGateWaitHonorsContext(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, http.StatusNotFound, "", nil)
	gate := newTestGate(Config{}, nil)

	_, err := gate.Acquire(context.Background(), srv.URL+"/first", time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = gate.Acquire(ctx, srv.URL+"/second", time.Hour)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestGateRejectsUnsupportedScheme(t *testing.T) {
	t.Parallel()

	gate := newTestGate(Config{}, nil)
	_, err := gate.Acquire(context.Background(), "ftp://example.com/file", 0)
	var fetchErr *harvest.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestRegistryIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a := reg.Budget("Example.COM")
	b := reg.Budget("example.com")
	require.Same(t, a, b)
	require.Equal(t, []string{"example.com"}, reg.Hosts())
}

func TestRateBudgetReserve(t *testing.T) {
	t.Parallel()

	b := &RateBudget{host: "example.com"}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, base, b.reserve(base, time.Second))
	require.Equal(t, base.Add(time.Second), b.reserve(base, time.Second))
	require.Equal(t, base.Add(2*time.Second), b.reserve(base.Add(500*time.Millisecond), time.Second))
	later := base.Add(time.Minute)
	require.Equal(t, later, b.reserve(later, time.Second))
}
