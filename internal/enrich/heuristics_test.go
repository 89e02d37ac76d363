package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsCareerLink(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		text string
		href string
		want bool
	}{
		{"Careers", "/company", true},
		{"", "/jobs/engineering", true},
		{"We're hiring", "/hiring", false},
		{"We're hiring", "/join-us", true},
		{"Careers blog", "/blog/careers", false},
		{"Privacy", "/privacy", false},
		{"About", "/about", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, isCareerLink(tc.text, tc.href), "%q %q", tc.text, tc.href)
	}
}

func TestAnchorCandidates(t *testing.T) {
	t.Parallel()

	body := []byte(`<a href="/careers">Careers</a>
		<a href="/careers">Careers again</a>
		<a href="https://other.example/jobs">Partner jobs</a>
		<a href="https://jobs.lever.co/acme">Open roles</a>
		<a href="https://www.acme.com/join">Join</a>`)

	got := anchorCandidates("https://acme.com/", body, 2)
	require.Equal(t, []string{"https://acme.com/careers", "https://jobs.lever.co/acme"}, got)

	got = anchorCandidates("https://acme.com/", body, 5)
	require.Equal(t, []string{
		"https://acme.com/careers",
		"https://jobs.lever.co/acme",
		"https://www.acme.com/join",
	}, got)
}

func TestLooksLikeCareers(t *testing.T) {
	t.Parallel()

	require.True(t, looksLikeCareers([]byte(`<title>Careers at Acme</title>`)))
	require.True(t, looksLikeCareers([]byte(`<h1>Join us</h1>`)))
	require.True(t, looksLikeCareers([]byte(`<p>Current openings</p>`)))
	require.True(t, looksLikeCareers([]byte(`<iframe src="https://jobs.ashbyhq.com/acme"></iframe>`)))
	require.False(t, looksLikeCareers([]byte(`<title>Acme</title><p>We make widgets.</p>`)))
}

func TestProbeURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://acme.com/careers", probeURL("https://acme.com/en/home", "/careers"))
	require.Equal(t, "https://acme.com/company/careers", probeURL("https://acme.com", "/company/careers"))
}
