package enrich

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/org-harvester/internal/pagination"
)

// Well-known career page locations, probed in this order after any
// homepage links.
var fixedPaths = []string{
	"/careers",
	"/careers/",
	"/jobs",
	"/jobs/",
	"/join",
	"/join-us",
	"/company/careers",
}

var (
	careerPathPattern = regexp.MustCompile(
		`(?i)/(careers?|jobs?|open-roles|openings|vacancies|join-us|join|work-with|work-at|employment)`,
	)
	careerExcludePattern = regexp.MustCompile(
		`(?i)/(blog|news|press|media|events|guide|learn|resources|legal|privacy|terms|policy)`,
	)

	strongKeywords = []string{
		"careers", "career", "jobs", "job", "open roles", "openings",
		"vacancies", "join us", "work with", "work at",
	}
	weakKeywords = []string{"employment", "hiring"}

	jobMarkers = []string{
		"open positions", "job openings", "open roles", "current openings",
		"we're hiring", "we are hiring", "join our team", "apply now",
	}

	// Applicant tracking systems commonly embedded on career pages.
	atsHosts = []string{"greenhouse.io", "lever.co", "ashbyhq.com", "workable.com"}
)

// isCareerLink reports whether an anchor looks like it leads to a careers
// page. Excluded sections (blog, legal, ...) never match.
func isCareerLink(text, href string) bool {
	if text == "" && href == "" {
		return false
	}
	hrefLower := strings.ToLower(href)
	textLower := strings.ToLower(text)
	if careerExcludePattern.MatchString(hrefLower) {
		return false
	}
	if careerPathPattern.MatchString(hrefLower) {
		return true
	}
	if containsAny(textLower, strongKeywords) {
		return true
	}
	if containsAny(textLower, weakKeywords) {
		return careerPathPattern.MatchString(hrefLower)
	}
	return false
}

// anchorCandidates returns up to limit career-looking links from a page,
// restricted to the same site or a known ATS host.
func anchorCandidates(pageURL string, body []byte, limit int) []string {
	if limit <= 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	site := siteHost(pageURL)

	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		text := strings.Join(strings.Fields(a.Text()), " ")
		if !isCareerLink(text, href) {
			return true
		}
		resolved := pagination.ResolveReference(pageURL, href)
		if resolved == "" {
			return true
		}
		host := siteHost(resolved)
		if host != site && !isATSHost(host) {
			return true
		}
		if _, dup := seen[resolved]; dup {
			return true
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
		return len(out) < limit
	})
	return out
}

// looksLikeCareers applies the content check to a fetched page: a strong
// keyword in the title or first h1, a job-listing phrase in the text, or an
// embedded ATS reference.
func looksLikeCareers(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	heading := strings.ToLower(doc.Find("title").First().Text() + " " + doc.Find("h1").First().Text())
	if containsAny(heading, strongKeywords) {
		return true
	}
	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	if containsAny(text, jobMarkers) {
		return true
	}
	return containsAny(strings.ToLower(string(body)), atsHosts)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func siteHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func isATSHost(host string) bool {
	for _, ats := range atsHosts {
		if host == ats || strings.HasSuffix(host, "."+ats) {
			return true
		}
	}
	return false
}

// probeURL resolves a fixed path against the homepage.
func probeURL(home, path string) string {
	base, err := url.Parse(home)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(path)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
