package source

import (
	"context"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// FeedAdapter reads RSS, Atom and JSON Feed documents. Each item maps to
// name=title, website=link, info=description with markup stripped.
type FeedAdapter struct {
	getter harvest.Getter
	logger *zap.Logger
}

// NewFeedAdapter creates a FeedAdapter.
func NewFeedAdapter(getter harvest.Getter, logger *zap.Logger) *FeedAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedAdapter{getter: getter, logger: logger}
}

// Records parses the whole feed document, then yields items in feed order.
func (a *FeedAdapter) Records(ctx context.Context, src harvest.SourceConfig) iter.Seq2[harvest.RawRecord, error] {
	return func(yield func(harvest.RawRecord, error) bool) {
		rc, location, err := openDocument(ctx, a.getter, src)
		if err != nil {
			yield(harvest.RawRecord{}, err)
			return
		}
		defer func() {
			if cerr := rc.Close(); cerr != nil {
				a.logger.Debug("failed to close feed source", zap.String("source", src.Name), zap.Error(cerr))
			}
		}()

		feed, err := gofeed.NewParser().Parse(rc)
		if err != nil {
			yield(harvest.RawRecord{}, &harvest.ParseError{Location: location, Fatal: true, Err: err})
			return
		}
		a.logger.Debug("feed parsed",
			zap.String("source", src.Name),
			zap.String("feed_type", feed.FeedType),
			zap.Int("items", len(feed.Items)),
		)

		for _, item := range feed.Items {
			if item == nil {
				continue
			}
			link := strings.TrimSpace(item.Link)
			if link == "" && len(item.Links) > 0 {
				link = strings.TrimSpace(item.Links[0])
			}
			description := item.Description
			if description == "" {
				description = item.Content
			}
			fields := recordFields(func(canonical string) string {
				switch canonical {
				case harvest.FieldName:
					return collapseSpace(item.Title)
				case harvest.FieldWebsite:
					return link
				case harvest.FieldInfo:
					return stripMarkup(description)
				default:
					return ""
				}
			})
			if !yield(harvest.RawRecord{Fields: fields, SourceURL: location, Source: &src}, nil) {
				return
			}
		}
	}
}

func stripMarkup(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	return collapseSpace(doc.Text())
}
