// Package tenant holds the Store record and the store directory contract
// the domain resolver queries, plus an in-memory directory seeded from YAML.
package tenant

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by directories when no store matches.
var ErrNotFound = errors.New("store not found")

// Settings holds the store-wide formatting settings exposed to templates.
type Settings struct {
	Currency      string `yaml:"currency" json:"currency"`
	Locale        string `yaml:"locale" json:"locale"`
	MoneyFormat   string `yaml:"money_format" json:"money_format"`
	DecimalPlaces *int   `yaml:"decimal_places" json:"decimal_places,omitempty"`
	Timezone      string `yaml:"timezone" json:"timezone"`
}

// Store is one tenant storefront. It is immutable for the duration of a render.
type Store struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description" json:"description"`
	Email         string            `yaml:"email" json:"email"`
	PrimaryDomain string            `yaml:"primary_domain" json:"primary_domain"`
	CustomDomains []string          `yaml:"custom_domains" json:"custom_domains"`
	ThemeID       string            `yaml:"theme_id" json:"theme_id"`
	Settings      Settings          `yaml:"settings" json:"settings"`
	Policies      map[string]string `yaml:"policies" json:"policies"`
	Active        bool              `yaml:"active" json:"active"`
	CreatedAt     time.Time         `yaml:"created_at" json:"created_at"`
}

// Domains returns every domain the store answers on, primary first.
func (s *Store) Domains() []string {
	domains := make([]string, 0, len(s.CustomDomains)+1)
	if s.PrimaryDomain != "" {
		domains = append(domains, s.PrimaryDomain)
	}
	return append(domains, s.CustomDomains...)
}

// Currency returns the store currency, defaulting to COP.
func (s *Store) Currency() string {
	if s.Settings.Currency == "" {
		return "COP"
	}
	return s.Settings.Currency
}

// Locale returns the store locale, defaulting to es-CO.
func (s *Store) Locale() string {
	if s.Settings.Locale == "" {
		return "es-CO"
	}
	return s.Settings.Locale
}

// MoneyFormat returns the money format template, defaulting to "${{amount}}".
func (s *Store) MoneyFormat() string {
	if s.Settings.MoneyFormat == "" {
		return "${{amount}}"
	}
	return s.Settings.MoneyFormat
}

// DecimalPlaces returns the currency's decimal places, defaulting to 2.
func (s *Store) DecimalPlaces() int {
	if s.Settings.DecimalPlaces == nil {
		return 2
	}
	return *s.Settings.DecimalPlaces
}

// Directory looks stores up by domain or id.
type Directory interface {
	FindByCustomDomain(ctx context.Context, domain string) (*Store, error)
	FindByPrimaryDomain(ctx context.Context, domain string) (*Store, error)
	FindByID(ctx context.Context, id string) (*Store, error)
}

// NormalizeDomain lower-cases a host and strips whitespace, any port and a
// trailing dot.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		// IPv6 literal
		if end := strings.Index(host, "]"); end >= 0 {
			return host[:end+1]
		}
		return host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
