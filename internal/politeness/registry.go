package politeness

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// RateBudget is the per-host politeness state. All fields are guarded by mu;
// a slot is reserved under the lock so concurrent callers queue up behind
// each other instead of racing for the same instant.
type RateBudget struct {
	host string

	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
	robots      *robotsRules
}

// Host returns the lower-cased host key.
func (b *RateBudget) Host() string {
	return b.host
}

// LastRequest returns the time of the most recently reserved request slot.
func (b *RateBudget) LastRequest() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRequest
}

// MinInterval returns the interval applied to the most recent reservation.
func (b *RateBudget) MinInterval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minInterval
}

// reserve claims the next slot at least interval after the previous one and
// returns it. The caller sleeps until the slot before issuing the request.
func (b *RateBudget) reserve(now time.Time, interval time.Duration) time.Time {
	if interval < 0 {
		interval = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := now
	if !b.lastRequest.IsZero() {
		if next := b.lastRequest.Add(interval); next.After(slot) {
			slot = next
		}
	}
	b.lastRequest = slot
	b.minInterval = interval
	return slot
}

func (b *RateBudget) robotsRules() (*robotsRules, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.robots, b.robots != nil
}

func (b *RateBudget) setRobots(rules *robotsRules) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.robots = rules
}

// Registry holds one RateBudget per host, created on first use.
type Registry struct {
	mu      sync.Mutex
	budgets map[string]*RateBudget
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{budgets: make(map[string]*RateBudget)}
}

// Budget returns the budget for host, creating it lazily. Hosts are
// case-insensitive.
func (r *Registry) Budget(host string) *RateBudget {
	key := strings.ToLower(host)
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.budgets[key]; ok {
		return b
	}
	b := &RateBudget{host: key}
	r.budgets[key] = b
	return b
}

// Hosts lists the hosts seen so far, sorted.
func (r *Registry) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	hosts := make([]string, 0, len(r.budgets))
	for h := range r.budgets {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
