// Package internal holds the storefront renderer.
//
// A request flows through these packages in order:
//
//   - server: HTTP surface, middleware and admin routes
//   - pipeline: the staged render of one page and the page cache
//   - domain: host name to store resolution over a tenant directory
//   - templates: theme loading, JSON descriptors and section schemas
//   - rendering: the template context built from catalog data
//   - liquid: the template engine with its tags and filters
//   - assets: per-render CSS and JS collection and injection
//   - errorpage: generic pages for failed renders
//
// Supporting packages: cache (bounded TTL cache with per-store
// invalidation), storage (theme object store), tenant and catalog (store and
// catalog models with in-memory implementations), sqlite (the same on
// SQLite), config, logging, errors, watcher and devsync (theme hot reload),
// version.
package internal
