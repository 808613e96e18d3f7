package validation

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	maxDomainLength   = 253
	maxDecisionLength = 128
)

var (
	labelPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	decisionPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// NormalizeDomain lowercases a bare hostname and checks that it is a
// syntactically valid name under a known public suffix. IP literals are
// rejected; tasks name domains.
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" || strings.ContainsAny(d, "/:@ ") || net.ParseIP(d) != nil {
		return "", ErrInvalidDomain
	}
	if len(d) > maxDomainLength {
		return "", ErrDomainTooLong
	}
	for _, label := range strings.Split(d, ".") {
		if !labelPattern.MatchString(label) {
			return "", ErrInvalidDomain
		}
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return "", ErrNoPublicSuffix
	}
	return d, nil
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsupportedURL
	}
	return nil
}

func ValidateDecisionID(id string) error {
	if len(id) > maxDecisionLength {
		return ErrDecisionTooLong
	}
	if !decisionPattern.MatchString(id) {
		return ErrInvalidDecision
	}
	return nil
}
