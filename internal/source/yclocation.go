package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
	"github.com/JakeFAU/org-harvester/internal/pagination"
)

const (
	ycCompanyBase   = "https://www.ycombinator.com/companies/"
	fieldCompanyURL = "company_url"
)

var errNoDataPage = errors.New("no data-page payload")

// Hosts never taken as a company's own website.
var socialHosts = map[string]struct{}{
	"twitter.com":    {},
	"x.com":          {},
	"linkedin.com":   {},
	"facebook.com":   {},
	"instagram.com":  {},
	"youtube.com":    {},
	"crunchbase.com": {},
	"angel.co":       {},
	"wellfound.com":  {},
	"medium.com":     {},
	"substack.com":   {},
	"forbes.com":     {},
	"techcrunch.com": {},
	"cnbc.com":       {},
	"bloomberg.com":  {},
	"wsj.com":        {},
	"nytimes.com":    {},
}

// YCLocationAdapter reads Y Combinator company listings filtered by
// location. Each page embeds its companies as JSON in a data-page
// attribute; pages are walked with a page query parameter.
type YCLocationAdapter struct {
	crawler *pagination.Crawler
	getter  harvest.Getter
	logger  *zap.Logger
}

// NewYCLocationAdapter creates a YCLocationAdapter.
func NewYCLocationAdapter(crawler *pagination.Crawler, getter harvest.Getter, logger *zap.Logger) *YCLocationAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YCLocationAdapter{crawler: crawler, getter: getter, logger: logger}
}

type ycListing struct {
	Props struct {
		Companies  []json.RawMessage `json:"companies"`
		TotalPages int               `json:"totalPages"`
	} `json:"props"`
}

type ycCompany struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	Website         string `json:"website"`
	OneLiner        string `json:"one_liner"`
	LongDescription string `json:"long_description"`
	CompanyURL      string `json:"ycdc_company_url"`
}

// Records crawls the listing. Companies without a website fall back to
// their company page when fetch_company_pages is set; a failed company
// page is a warning and the record is kept without a website.
func (a *YCLocationAdapter) Records(ctx context.Context, src harvest.SourceConfig) iter.Seq2[harvest.RawRecord, error] {
	return func(yield func(harvest.RawRecord, error) bool) {
		seq, state := a.crawler.Crawl(ctx, pagination.Request{
			Source:      src.Name,
			StartURL:    src.URL,
			MaxPages:    src.MaxPages,
			MinInterval: src.RateLimit,
		}, ExtractYCListing(src))
		for rec, err := range seq {
			if err == nil {
				companyURL := rec.Fields[fieldCompanyURL]
				delete(rec.Fields, fieldCompanyURL)
				if rec.Get(harvest.FieldWebsite) == "" && src.FetchCompanyPages && companyURL != "" && ctx.Err() == nil {
					website, ferr := a.companyWebsite(ctx, src, companyURL)
					if ferr != nil {
						if !yield(harvest.RawRecord{}, &harvest.ParseError{Location: companyURL, Err: ferr}) {
							return
						}
					} else if website != "" {
						rec.Fields[harvest.FieldWebsite] = website
					}
				}
			}
			if !yield(rec, err) {
				return
			}
		}
		a.logger.Info("yc listing crawled",
			zap.String("source", src.Name),
			zap.Int("pages", len(state.PagesVisited)),
			zap.Int("items", state.ItemsEmitted),
			zap.String("reason", string(state.Reason)),
		)
	}
}

func (a *YCLocationAdapter) companyWebsite(ctx context.Context, src harvest.SourceConfig, companyURL string) (string, error) {
	resp, err := a.getter.Get(ctx, harvest.GetRequest{URL: companyURL, MinInterval: src.RateLimit})
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return CompanyWebsite(doc), nil
}

// ExtractYCListing returns the extractor for one listing page. The next
// page is the current page number plus one while it stays within
// totalPages.
func ExtractYCListing(src harvest.SourceConfig) pagination.Extractor {
	return func(pageURL string, body []byte) ([]harvest.RawRecord, string, error) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, "", fmt.Errorf("parse html: %w", err)
		}
		raw, ok := doc.Find("[data-page]").First().Attr("data-page")
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, "", errNoDataPage
		}
		var listing ycListing
		if err := json.Unmarshal([]byte(raw), &listing); err != nil {
			return nil, "", fmt.Errorf("decode data-page: %w", err)
		}

		items := make([]harvest.RawRecord, 0, len(listing.Props.Companies))
		for _, msg := range listing.Props.Companies {
			var company ycCompany
			if err := json.Unmarshal(msg, &company); err != nil {
				continue
			}
			companyURL := company.CompanyURL
			if companyURL == "" && company.Slug != "" {
				companyURL = ycCompanyBase + url.PathEscape(company.Slug)
			}
			fields := recordFields(func(canonical string) string {
				switch canonical {
				case harvest.FieldName:
					return collapseSpace(company.Name)
				case harvest.FieldWebsite:
					return strings.TrimSpace(company.Website)
				case harvest.FieldInfo:
					if company.OneLiner != "" {
						return strings.TrimSpace(company.OneLiner)
					}
					return strings.TrimSpace(company.LongDescription)
				default:
					return ""
				}
			})
			if len(fields) == 0 {
				continue
			}
			if companyURL != "" {
				fields[fieldCompanyURL] = companyURL
			}
			items = append(items, harvest.RawRecord{Fields: fields, SourceURL: pageURL, Source: &src})
		}

		page := pageNumber(pageURL)
		if listing.Props.TotalPages == 0 || page >= listing.Props.TotalPages {
			return items, "", nil
		}
		return items, withPage(pageURL, page+1), nil
	}
}

// CompanyWebsite picks the company's own site from a profile page: an
// anchor labelled "website" wins, then the first external link that is not
// a social or press host, preferring one whose text names its domain.
func CompanyWebsite(doc *goquery.Document) string {
	anchors := doc.Find("a[href]")

	var labelled string
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(a.AttrOr("aria-label", "")), "website") {
			labelled = a.AttrOr("href", "")
			return false
		}
		return true
	})
	if labelled != "" {
		return labelled
	}
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.EqualFold(collapseSpace(a.Text()), "website") {
			labelled = a.AttrOr("href", "")
			return false
		}
		return true
	})
	if labelled != "" {
		return labelled
	}

	var first, named string
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if !strings.HasPrefix(href, "http") {
			return true
		}
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if _, social := socialHosts[host]; social {
			return true
		}
		text := collapseSpace(a.Text())
		if (host != "" && strings.Contains(strings.ToLower(text), host)) || text == href {
			named = href
			return false
		}
		if first == "" {
			first = href
		}
		return true
	})
	if named != "" {
		return named
	}
	return first
}

func pageNumber(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func withPage(rawURL string, page int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
