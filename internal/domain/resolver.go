// Package domain resolves inbound hostnames to tenant stores.
package domain

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/storefront/internal/cache"
	rerrors "github.com/conneroisu/storefront/internal/errors"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/tenant"
)

// negative is the cached outcome of a failed resolution.
type negative struct {
	err error
}

// Size implements cache.Sizer.
func (negative) Size() int64 { return 64 }

// Resolver maps hostnames to stores through a store directory, caching
// positive and negative outcomes.
type Resolver struct {
	directory tenant.Directory
	cache     *cache.Manager
	reserved  map[string]struct{}
	timeout   time.Duration
	logger    logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReservedDomains sets the platform domains that never resolve to a store.
func WithReservedDomains(domains ...string) Option {
	return func(r *Resolver) {
		for _, d := range domains {
			if n := tenant.NormalizeDomain(d); n != "" {
				r.reserved[n] = struct{}{}
			}
		}
	}
}

// WithTimeout bounds each directory round trip.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Resolver) { r.logger = l.WithComponent("domain") }
}

// NewResolver creates a resolver over a directory and a cache manager.
func NewResolver(dir tenant.Directory, cm *cache.Manager, opts ...Option) *Resolver {
	r := &Resolver{
		directory: dir,
		cache:     cm,
		reserved:  make(map[string]struct{}),
		timeout:   5 * time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsReserved reports whether a host is a platform domain.
func (r *Resolver) IsReserved(host string) bool {
	_, ok := r.reserved[tenant.NormalizeDomain(host)]
	return ok
}

// ResolveStoreByDomain returns the active store serving host.
func (r *Resolver) ResolveStoreByDomain(ctx context.Context, host string) (*tenant.Store, error) {
	domain := tenant.NormalizeDomain(host)
	if domain == "" {
		return nil, rerrors.NewStoreNotFoundError(host)
	}
	if r.IsReserved(domain) {
		return nil, rerrors.NewDomainReservedError(domain)
	}

	store, err := r.lookup(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !store.Active {
		return nil, rerrors.NewStoreInactiveError(domain).WithContext("store_id", store.ID)
	}

	return store, nil
}

// Invalidate drops the cached resolution of a domain.
func (r *Resolver) Invalidate(host string) bool {
	return r.cache.Delete(cache.DomainKey(tenant.NormalizeDomain(host)))
}

func (r *Resolver) lookup(ctx context.Context, domain string) (*tenant.Store, error) {
	key := cache.DomainKey(domain)
	if v, ok := r.cache.Get(key); ok {
		switch hit := v.(type) {
		case *tenant.Store:
			return hit, nil
		case negative:
			return nil, hit.err
		}
	}

	store, err := r.fetch(ctx, domain)
	policy := r.cache.Policy()
	switch {
	case err == nil:
		r.cache.Set(key, store, policy.Domain)
		return store, nil
	case errors.Is(err, rerrors.ErrStoreNotFound):
		r.cache.Set(key, negative{err: err}, policy.DomainNotFound)
	case errors.Is(ctx.Err(), context.Canceled):
		// caller went away; the directory is not at fault
	default:
		r.logger.Warn(ctx, err, "Store lookup failed", "domain", domain)
		r.cache.Set(key, negative{err: err}, policy.DomainError)
	}

	return nil, err
}

// fetch queries the directory by custom and primary domain concurrently.
// A custom-domain match wins over a primary-domain match.
func (r *Resolver) fetch(ctx context.Context, domain string) (*tenant.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var custom, primary *tenant.Store
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.directory.FindByCustomDomain(gctx, domain)
		if err != nil && !errors.Is(err, tenant.ErrNotFound) {
			return err
		}
		custom = s
		return nil
	})
	g.Go(func() error {
		s, err := r.directory.FindByPrimaryDomain(gctx, domain)
		if err != nil && !errors.Is(err, tenant.ErrNotFound) {
			return err
		}
		primary = s
		return nil
	})
	err := g.Wait()

	switch {
	case custom != nil:
		return custom, nil
	case primary != nil:
		return primary, nil
	case err != nil:
		return nil, rerrors.FromUpstream("store directory", err, func(cause error) *rerrors.RenderError {
			return rerrors.NewRenderError("store lookup failed", cause)
		})
	}

	r.logger.Debug(ctx, "No store for domain", "domain", domain)
	return nil, rerrors.NewStoreNotFoundError(domain)
}
