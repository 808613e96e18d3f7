package validation

import "errors"

var (
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrDomainTooLong   = errors.New("domain exceeds 253 characters")
	ErrNoPublicSuffix  = errors.New("domain has no registrable public suffix")
	ErrInvalidURL      = errors.New("invalid url")
	ErrUnsupportedURL  = errors.New("url scheme must be http or https")
	ErrInvalidDecision = errors.New("decision_id may only contain letters, digits, '-', '_' and '.'")
	ErrDecisionTooLong = errors.New("decision_id exceeds 128 characters")
)
