package pipeline

import (
	"strings"
	"sync"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/hash/sha256"
)

// seenTracker provides thread-safe duplicate detection across sources. Keys
// are fixed-size fingerprints of (name, website).
type seenTracker struct {
	seen sync.Map
}

// MarkIfNew stores the record identity if it has not been seen before and
// returns true.
func (t *seenTracker) MarkIfNew(rec harvest.NormalizedRecord) bool {
	key := sha256.Fingerprint(rec.Name, strings.TrimRight(rec.Website, "/"))
	_, loaded := t.seen.LoadOrStore(key, struct{}{})
	return !loaded
}
