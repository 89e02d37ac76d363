package politeness

import (
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsRules is the cached robots.txt outcome for one host. A nil data with
// denyAll unset means everything is allowed.
type robotsRules struct {
	data    *robotstxt.RobotsData
	denyAll bool
	reason  string
}

func allowAllRules(reason string) *robotsRules {
	return &robotsRules{reason: reason}
}

func denyAllRules(reason string) *robotsRules {
	return &robotsRules{denyAll: true, reason: reason}
}

func (r *robotsRules) allows(path, agent string) bool {
	if r == nil {
		return true
	}
	if r.denyAll {
		return false
	}
	if r.data == nil {
		return true
	}
	return r.data.TestAgent(path, agent)
}

func (r *robotsRules) crawlDelay(agent string) time.Duration {
	if r == nil || r.data == nil {
		return 0
	}
	group := r.data.FindGroup(agent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *robotsRules) denyReason() string {
	if r != nil && r.denyAll && r.reason != "" {
		return r.reason
	}
	return "disallowed by robots.txt"
}

// requestPath is the path plus query robots rules are matched against.
func requestPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

func robotsURL(u *url.URL) string {
	robots := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	return robots.String()
}
