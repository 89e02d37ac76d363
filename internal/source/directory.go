package source

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/pagination"
)

// DirectoryAdapter extracts records from paginated HTML listings.
type DirectoryAdapter struct {
	crawler *pagination.Crawler
	logger  *zap.Logger
}

// NewDirectoryAdapter creates a DirectoryAdapter.
func NewDirectoryAdapter(crawler *pagination.Crawler, logger *zap.Logger) *DirectoryAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryAdapter{crawler: crawler, logger: logger}
}

// Records crawls from the source URL, following the next-page selector.
func (a *DirectoryAdapter) Records(ctx context.Context, src harvest.SourceConfig) iter.Seq2[harvest.RawRecord, error] {
	return func(yield func(harvest.RawRecord, error) bool) {
		seq, state := a.crawler.Crawl(ctx, pagination.Request{
			Source:      src.Name,
			StartURL:    src.URL,
			MaxPages:    src.MaxPages,
			MinInterval: src.RateLimit,
		}, ExtractDirectory(src))
		for rec, err := range seq {
			if !yield(rec, err) {
				return
			}
		}
		a.logger.Info("directory source crawled",
			zap.String("source", src.Name),
			zap.Int("pages", len(state.PagesVisited)),
			zap.Int("items", state.ItemsEmitted),
			zap.String("reason", string(state.Reason)),
		)
	}
}

// ExtractDirectory returns the page extractor for src's selectors. Items
// where every selector comes up empty are skipped.
func ExtractDirectory(src harvest.SourceConfig) pagination.Extractor {
	sel := src.Selectors
	return func(pageURL string, body []byte) ([]harvest.RawRecord, string, error) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, "", fmt.Errorf("parse html: %w", err)
		}

		var items []harvest.RawRecord
		doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
			fields := recordFields(func(canonical string) string {
				switch canonical {
				case harvest.FieldName:
					return selectText(item, sel.Name)
				case harvest.FieldWebsite:
					return selectLink(item, sel.Website, pageURL)
				case harvest.FieldInfo:
					return selectText(item, sel.Info)
				default:
					return ""
				}
			})
			if len(fields) == 0 {
				return
			}
			items = append(items, harvest.RawRecord{Fields: fields, SourceURL: pageURL, Source: &src})
		})

		var next string
		if sel.NextPage != "" {
			next, _ = doc.Find(sel.NextPage).First().Attr("href")
		}
		return items, next, nil
	}
}

func selectText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return collapseSpace(item.Find(selector).First().Text())
}

// selectLink prefers the href of the selected element, resolved against
// the page, and falls back to its text.
func selectLink(item *goquery.Selection, selector, pageURL string) string {
	if selector == "" {
		return ""
	}
	node := item.Find(selector).First()
	if href, ok := node.Attr("href"); ok {
		if resolved := pagination.ResolveReference(pageURL, href); resolved != "" {
			return resolved
		}
	}
	return collapseSpace(node.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
