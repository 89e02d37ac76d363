package harvest

import (
	"net/http"
	"strings"
	"time"
)

// SourceType identifies which adapter produces records for a source.
type SourceType string

// Supported source types.
const (
	SourceTypeCSV        SourceType = "csv"
	SourceTypeJSON       SourceType = "json"
	SourceTypeDirectory  SourceType = "directory"
	SourceTypeFeed       SourceType = "feed"
	SourceTypeYCLocation SourceType = "yc_location"
)

// Canonical raw field keys every adapter maps into.
const (
	FieldName    = "name"
	FieldWebsite = "website"
	FieldInfo    = "info"
)

// CanonicalFields lists the raw keys in output order.
var CanonicalFields = []string{FieldName, FieldWebsite, FieldInfo}

// Selectors holds the CSS selectors used by directory sources.
type Selectors struct {
	Item     string `mapstructure:"item" json:"item"`
	Name     string `mapstructure:"name" json:"name"`
	Website  string `mapstructure:"website" json:"website"`
	Info     string `mapstructure:"info" json:"info"`
	NextPage string `mapstructure:"next_page" json:"next_page"`
}

// SourceConfig describes one configured origin of records. It is immutable
// once loaded and owned by the orchestrator.
type SourceConfig struct {
	Name          string            `mapstructure:"name" validate:"required"`
	Type          SourceType        `mapstructure:"type" validate:"required,oneof=csv json directory feed yc_location"`
	URL           string            `mapstructure:"url" validate:"required_without=Path"`
	Path          string            `mapstructure:"path" validate:"required_without=URL"`
	Columns       map[string]string `mapstructure:"columns"`
	Fields        map[string]string `mapstructure:"fields"`
	Root          string            `mapstructure:"root"`
	Selectors     Selectors         `mapstructure:"selectors"`
	MaxPages      int               `mapstructure:"max_pages" validate:"gte=0"`
	RateLimit     time.Duration     `mapstructure:"rate_limit" validate:"gte=0"`
	EnrichCareers *bool             `mapstructure:"enrich_careers"`

	// FetchCompanyPages lets yc_location sources read a company's profile
	// page when the listing carries no website.
	FetchCompanyPages bool `mapstructure:"fetch_company_pages"`
}

// Location returns the URL when set, otherwise the local path.
func (s SourceConfig) Location() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// Remote reports whether the source is fetched over the network.
func (s SourceConfig) Remote() bool {
	return s.URL != ""
}

// FieldKey returns the source-side key holding the canonical field. CSV
// sources read from Columns, JSON sources from Fields; both default to the
// canonical name.
func (s SourceConfig) FieldKey(canonical string) string {
	var mapping map[string]string
	switch s.Type {
	case SourceTypeCSV:
		mapping = s.Columns
	case SourceTypeJSON:
		mapping = s.Fields
	}
	if key := strings.TrimSpace(mapping[canonical]); key != "" {
		return key
	}
	return canonical
}

// EnrichEnabled resolves the per-source enrichment toggle against the run default.
func (s SourceConfig) EnrichEnabled(runDefault bool) bool {
	if !runDefault {
		return false
	}
	if s.EnrichCareers == nil {
		return true
	}
	return *s.EnrichCareers
}

// RawRecord is one adapter-produced record keyed by canonical field name.
type RawRecord struct {
	Fields    map[string]string
	SourceURL string
	// Source is a back-reference; the orchestrator owns the config.
	Source *SourceConfig
}

// Get returns the trimmed value stored under key.
func (r RawRecord) Get(key string) string {
	if r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[key])
}

// NormalizedRecord is the canonical output schema.
type NormalizedRecord struct {
	Name        string    `json:"name"`
	Website     string    `json:"website"`
	Info        string    `json:"info"`
	CareersURL  *string   `json:"careers_url"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"source_url"`
	CollectedAt time.Time `json:"collected_at"`
}

// WithCareersURL returns a copy of the record with the careers URL set.
func (r NormalizedRecord) WithCareersURL(careersURL string) NormalizedRecord {
	out := r
	out.CareersURL = &careersURL
	return out
}

// Permit is returned by the politeness gate when a fetch may proceed.
type Permit struct {
	Host      string
	Path      string
	GrantedAt time.Time
	Waited    time.Duration
}

// GetRequest describes one gated GET.
type GetRequest struct {
	URL string
	// MinInterval overrides the gate default for this request's host.
	MinInterval time.Duration
	// Timeout bounds the fetch once the permit is granted; zero uses the client default.
	Timeout time.Duration
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response media type without parameters.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	ct := r.Headers.Get("Content-Type")
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
