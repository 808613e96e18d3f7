// Package htmltext pulls cheap page signals out of rendered markup.
package htmltext

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

type Signals struct {
	Title          string
	VisibleText    string
	FormCount      int
	PasswordFields int
	ExternalForms  int
	SuspiciousHits []string
}

var suspiciousPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"click here", regexp.MustCompile(`(?i)click here`)},
	{"urgent", regexp.MustCompile(`(?i)urgent`)},
	{"immediate", regexp.MustCompile(`(?i)immediate`)},
	{"verify account", regexp.MustCompile(`(?i)verify.*account`)},
	{"suspended", regexp.MustCompile(`(?i)suspended`)},
	{"winner", regexp.MustCompile(`(?i)winner`)},
	{"congratulations", regexp.MustCompile(`(?i)congratulations`)},
	{"free money", regexp.MustCompile(`(?i)free.*money`)},
	{"bitcoin", regexp.MustCompile(`(?i)bitcoin`)},
	{"cryptocurrency", regexp.MustCompile(`(?i)cryptocurrency`)},
}

var whitespace = regexp.MustCompile(`\s+`)

// Extract parses html and collects the visible text plus form statistics.
// host is the page host, used to spot forms posting to another site.
func Extract(html, host string) Signals {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Signals{}
	}

	var s Signals
	s.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, template").Remove()
	s.VisibleText = strings.TrimSpace(whitespace.ReplaceAllString(doc.Find("body").Text(), " "))

	forms := doc.Find("form")
	s.FormCount = forms.Length()
	s.PasswordFields = doc.Find(`input[type="password"], input[type="PASSWORD"]`).Length()

	site := RegistrableDomain(host)
	forms.Each(func(_ int, f *goquery.Selection) {
		action, ok := f.Attr("action")
		if !ok {
			return
		}
		target := actionHost(action)
		if target != "" && site != "" && RegistrableDomain(target) != site {
			s.ExternalForms++
		}
	})

	s.SuspiciousHits = SuspiciousHits(s.Title + " " + s.VisibleText)
	return s
}

// SuspiciousHits lists the social engineering phrases found in text.
func SuspiciousHits(text string) []string {
	var hits []string
	for _, p := range suspiciousPatterns {
		if p.re.MatchString(text) {
			hits = append(hits, p.name)
		}
	}
	return hits
}

// RegistrableDomain returns eTLD+1 for host, or host itself when it has none.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// actionHost returns the host a form posts to, or "" for relative and
// non-web actions.
func actionHost(action string) string {
	u, err := url.Parse(strings.TrimSpace(action))
	if err != nil || u.Host == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
		return strings.ToLower(u.Hostname())
	default:
		return ""
	}
}
