// Package source holds the adapters that turn a configured source into a
// lazy sequence of raw records. Adapters are stateless between calls.
package source

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/pagination"
)

// Registry maps source types to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[harvest.SourceType]harvest.Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[harvest.SourceType]harvest.Adapter)}
}

// NewDefaultRegistry registers every built-in adapter.
func NewDefaultRegistry(getter harvest.Getter, crawler *pagination.Crawler, logger *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(harvest.SourceTypeCSV, NewCSVAdapter(getter, logger))
	r.Register(harvest.SourceTypeJSON, NewJSONAdapter(getter, logger))
	r.Register(harvest.SourceTypeDirectory, NewDirectoryAdapter(crawler, logger))
	r.Register(harvest.SourceTypeFeed, NewFeedAdapter(getter, logger))
	r.Register(harvest.SourceTypeYCLocation, NewYCLocationAdapter(crawler, getter, logger))
	return r
}

// Register binds an adapter to a source type, replacing any previous one.
func (r *Registry) Register(kind harvest.SourceType, adapter harvest.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = adapter
}

// Adapter returns the adapter for kind or a ConfigError.
func (r *Registry) Adapter(kind harvest.SourceType) (harvest.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, &harvest.ConfigError{Field: "type", Err: fmt.Errorf("no adapter for source type %q", kind)}
	}
	return adapter, nil
}
