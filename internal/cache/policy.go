package cache

import "time"

// Policy is the static TTL table. Pages reflecting session state (cart,
// checkout) default to zero and are never cached.
type Policy struct {
	DefaultPage    time.Duration
	Pages          map[string]time.Duration
	Template       time.Duration
	Domain         time.Duration
	DomainNotFound time.Duration
	DomainError    time.Duration
}

// DefaultPolicy returns the production TTL table.
func DefaultPolicy() Policy {
	return Policy{
		DefaultPage: 30 * time.Minute,
		Pages: map[string]time.Duration{
			"index":          15 * time.Minute,
			"product":        60 * time.Minute,
			"collection":     45 * time.Minute,
			"search":         10 * time.Minute,
			"policies":       24 * time.Hour,
			"404":            24 * time.Hour,
			"cart":           0,
			"checkout_start": 0,
			"checkout":       0,
		},
		Template:       time.Hour,
		Domain:         30 * time.Minute,
		DomainNotFound: 5 * time.Minute,
		DomainError:    time.Minute,
	}
}

// PageTTL returns the TTL for a page type, falling back to DefaultPage.
func (p Policy) PageTTL(pageType string) time.Duration {
	if ttl, ok := p.Pages[pageType]; ok {
		return ttl
	}
	return p.DefaultPage
}

// WithPageTTLs returns a copy of the policy with overrides applied.
func (p Policy) WithPageTTLs(overrides map[string]time.Duration) Policy {
	pages := make(map[string]time.Duration, len(p.Pages)+len(overrides))
	for k, v := range p.Pages {
		pages[k] = v
	}
	for k, v := range overrides {
		pages[k] = v
	}
	p.Pages = pages
	return p
}
