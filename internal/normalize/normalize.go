// Package normalize maps raw adapter records onto the output schema.
package normalize

import (
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// Normalizer implements harvest.Normalizer. It is safe for concurrent use;
// collected_at never goes backwards within one source.
type Normalizer struct {
	clock harvest.Clock

	mu   sync.Mutex
	last map[string]time.Time
}

// New creates a Normalizer stamping records with clock.
func New(clock harvest.Clock) *Normalizer {
	return &Normalizer{clock: clock, last: make(map[string]time.Time)}
}

// Normalize trims fields, gives scheme-less websites https://, and rejects
// records with neither name nor website or with no provenance.
func (n *Normalizer) Normalize(raw harvest.RawRecord) (harvest.NormalizedRecord, error) {
	name := collapseSpace(raw.Get(harvest.FieldName))
	website := WebsiteURL(raw.Get(harvest.FieldWebsite))
	if name == "" && website == "" {
		return harvest.NormalizedRecord{}, &harvest.RejectedError{Reason: "missing name and website"}
	}

	var source string
	sourceURL := strings.TrimSpace(raw.SourceURL)
	if raw.Source != nil {
		source = strings.TrimSpace(raw.Source.Name)
		if sourceURL == "" {
			sourceURL = raw.Source.Location()
		}
	}
	if source == "" || sourceURL == "" {
		return harvest.NormalizedRecord{}, &harvest.RejectedError{Reason: "missing provenance"}
	}

	return harvest.NormalizedRecord{
		Name:        name,
		Website:     website,
		Info:        strings.TrimSpace(raw.Get(harvest.FieldInfo)),
		Source:      source,
		SourceURL:   sourceURL,
		CollectedAt: n.stamp(source),
	}, nil
}

func (n *Normalizer) stamp(source string) time.Time {
	now := time.Now().UTC()
	if n.clock != nil {
		now = n.clock.Now().UTC()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if prev, ok := n.last[source]; ok && now.Before(prev) {
		now = prev
	}
	n.last[source] = now
	return now
}

// WebsiteURL trims raw and prefixes https:// when it carries no scheme.
// Values with a scheme other than http or https yield "".
func WebsiteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	}
	if scheme, ok := urlScheme(raw); ok {
		switch strings.ToLower(scheme) {
		case "http", "https":
			return raw
		default:
			return ""
		}
	}
	return "https://" + raw
}

// urlScheme reports the scheme prefix of raw. A host:port value such as
// acme.com:8080 has no scheme.
func urlScheme(raw string) (string, bool) {
	i := strings.IndexByte(raw, ':')
	if i <= 0 {
		return "", false
	}
	scheme := raw[:i]
	for j, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return "", false
		}
	}
	rest := raw[i+1:]
	if strings.HasPrefix(rest, "//") {
		return scheme, true
	}
	if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return "", false
	}
	return scheme, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
