package pagination

import "github.com/JakeFAU/org-harvester/internal/harvest"

// Phase is the crawler's position in its state machine.
type Phase int

// Crawl phases. Fetching covers waiting for the gate as well as the request.
const (
	PhaseFetching Phase = iota
	PhaseExtracted
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseExtracted:
		return "extracted"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// DoneReason records why a crawl reached PhaseDone.
type DoneReason string

// Terminal reasons.
const (
	ReasonNoNext   DoneReason = "no_next"
	ReasonCycle    DoneReason = "cycle"
	ReasonMaxPages DoneReason = "max_pages"
	ReasonFailed   DoneReason = "failed"
	ReasonCanceled DoneReason = "canceled"
)

// State is the crawl progress for one directory source. PagesVisited holds
// normalized URLs and never contains duplicates.
type State struct {
	Phase          Phase
	CurrentPageURL string
	NextPageURL    string
	PagesVisited   map[string]struct{}
	ItemsEmitted   int
	Reason         DoneReason

	pending []harvest.RawRecord
	// aliases holds redirect targets of fetched pages; they count as visited
	// but not toward the page limit.
	aliases map[string]struct{}
}

func newState(startURL string) *State {
	return &State{
		Phase:          PhaseFetching,
		CurrentPageURL: startURL,
		PagesVisited:   make(map[string]struct{}),
		aliases:        make(map[string]struct{}),
	}
}

// Visited reports whether rawURL was already fetched.
func (s *State) Visited(rawURL string) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if _, ok := s.PagesVisited[key]; ok {
		return true
	}
	_, ok := s.aliases[key]
	return ok
}

func (s *State) markVisited(rawURL string) {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		key = rawURL
	}
	s.PagesVisited[key] = struct{}{}
}

// markAlias records the URL a fetched page redirected to.
func (s *State) markAlias(rawURL string) {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return
	}
	if _, ok := s.PagesVisited[key]; !ok {
		s.aliases[key] = struct{}{}
	}
}

// extracted moves Fetching to Extracted with the page's items and next link.
func (s *State) extracted(items []harvest.RawRecord, next string) {
	s.pending = items
	s.NextPageURL = next
	s.Phase = PhaseExtracted
}

// advance leaves Extracted: either Fetching the next page or Done.
func (s *State) advance(maxPages int) {
	s.pending = nil
	switch {
	case s.NextPageURL == "":
		s.finish(ReasonNoNext)
	case s.Visited(s.NextPageURL):
		s.finish(ReasonCycle)
	case len(s.PagesVisited) >= maxPages:
		s.finish(ReasonMaxPages)
	default:
		s.CurrentPageURL = s.NextPageURL
		s.NextPageURL = ""
		s.Phase = PhaseFetching
	}
}

func (s *State) finish(reason DoneReason) {
	s.pending = nil
	s.Reason = reason
	s.Phase = PhaseDone
}
