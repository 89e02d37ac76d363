// Package pagination walks multi-page HTML directories as an explicit state
// machine: Fetching, Extracted, then Fetching again or Done.
package pagination

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/metrics"
)

// DefaultMaxPages bounds a crawl when the source does not set max_pages.
const DefaultMaxPages = 50

// Extractor turns one fetched page into records and an optional next-page
// href. pageURL is the final URL of the page and is used to resolve
// relative links.
type Extractor func(pageURL string, body []byte) (items []harvest.RawRecord, next string, err error)

// Request describes one crawl.
type Request struct {
	Source      string
	StartURL    string
	MaxPages    int
	MinInterval time.Duration
}

// Crawler drives directory crawls through a harvest.Getter.
type Crawler struct {
	getter harvest.Getter
	logger *zap.Logger
}

// New creates a Crawler.
func New(getter harvest.Getter, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{getter: getter, logger: logger}
}

// Crawl returns a lazy record sequence and the State it advances. Nothing is
// fetched until the sequence is ranged over; State is final once the range
// loop ends.
//
// A failure on the first page is yielded as-is (parse failures become fatal
// ParseErrors). A failure after at least one page is yielded as a
// PartialResultError warning and ends the crawl; records already yielded
// stand.
func (c *Crawler) Crawl(ctx context.Context, req Request, extract Extractor) (iter.Seq2[harvest.RawRecord, error], *State) {
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	state := newState(req.StartURL)

	seq := func(yield func(harvest.RawRecord, error) bool) {
		for state.Phase != PhaseDone {
			switch state.Phase {
			case PhaseFetching:
				if err := ctx.Err(); err != nil {
					state.finish(ReasonCanceled)
					yield(harvest.RawRecord{}, err)
					return
				}
				page, err := c.fetchPage(ctx, req, state.CurrentPageURL, extract)
				if err != nil {
					c.fail(ctx, state, err, yield)
					return
				}
				redirected := page.finalURL != "" && page.finalURL != state.CurrentPageURL
				if redirected && state.Visited(page.finalURL) {
					// Redirected back onto a page already crawled.
					state.markVisited(state.CurrentPageURL)
					state.finish(ReasonCycle)
					return
				}
				state.markVisited(state.CurrentPageURL)
				if redirected {
					state.markAlias(page.finalURL)
				}
				state.extracted(page.items, page.next)
			case PhaseExtracted:
				for _, item := range state.pending {
					state.ItemsEmitted++
					if !yield(item, nil) {
						state.finish(ReasonCanceled)
						return
					}
				}
				state.advance(maxPages)
				if state.Phase == PhaseDone {
					c.logger.Debug("directory crawl finished",
						zap.String("source", req.Source),
						zap.String("reason", string(state.Reason)),
						zap.Int("pages", len(state.PagesVisited)),
						zap.Int("items", state.ItemsEmitted),
					)
				}
			}
		}
	}
	return seq, state
}

// fetchedPage is one extracted directory page.
type fetchedPage struct {
	items    []harvest.RawRecord
	next     string
	finalURL string
}

func (c *Crawler) fetchPage(
	ctx context.Context,
	req Request,
	pageURL string,
	extract Extractor,
) (fetchedPage, error) {
	resp, err := c.getter.Get(ctx, harvest.GetRequest{URL: pageURL, MinInterval: req.MinInterval})
	if err != nil {
		return fetchedPage{}, err
	}
	base := pageURL
	if resp.FinalURL != "" {
		base = resp.FinalURL
	}
	metrics.ObservePageCrawled(req.Source)

	items, next, err := extract(base, resp.Body)
	if err != nil {
		return fetchedPage{}, &harvest.ParseError{Location: pageURL, Err: err}
	}
	return fetchedPage{items: items, next: ResolveReference(base, next), finalURL: resp.FinalURL}, nil
}

// fail moves the crawl to Done and yields the failure with the right weight.
func (c *Crawler) fail(ctx context.Context, state *State, err error, yield func(harvest.RawRecord, error) bool) {
	if ctx.Err() != nil {
		state.finish(ReasonCanceled)
		yield(harvest.RawRecord{}, err)
		return
	}
	state.finish(ReasonFailed)
	if len(state.PagesVisited) == 0 {
		var parseErr *harvest.ParseError
		if errors.As(err, &parseErr) {
			parseErr.Fatal = true
		}
		yield(harvest.RawRecord{}, err)
		return
	}
	c.logger.Warn("crawl stopped early",
		zap.String("url", state.CurrentPageURL),
		zap.Int("pages", len(state.PagesVisited)),
		zap.Error(err),
	)
	yield(harvest.RawRecord{}, &harvest.PartialResultError{
		PagesVisited: len(state.PagesVisited),
		ItemsEmitted: state.ItemsEmitted,
		Err:          err,
	})
}
