package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/storefront/internal/cache"
	"github.com/conneroisu/storefront/internal/catalog"
	"github.com/conneroisu/storefront/internal/config"
	"github.com/conneroisu/storefront/internal/domain"
	"github.com/conneroisu/storefront/internal/liquid"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/pipeline"
	"github.com/conneroisu/storefront/internal/rendering"
	"github.com/conneroisu/storefront/internal/sqlite"
	"github.com/conneroisu/storefront/internal/storage"
	"github.com/conneroisu/storefront/internal/templates"
	"github.com/conneroisu/storefront/internal/tenant"
)

// app holds the components every command assembles from configuration.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	cache    *cache.Manager
	loader   *templates.Loader
	resolver *domain.Resolver
	orch     *pipeline.Orchestrator
	closers  []io.Closer
}

func newLogger(cfg config.LogConfig, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    w,
		Component: "storefront",
	}), nil
}

func cachePolicy(cfg config.CacheConfig) cache.Policy {
	p := cache.DefaultPolicy().WithPageTTLs(cfg.PageTTLs)
	if cfg.DomainTTL > 0 {
		p.Domain = cfg.DomainTTL
	}
	if cfg.TemplateTTL > 0 {
		p.Template = cfg.TemplateTTL
	}
	return p
}

// openDirectory returns the store directory and catalog named by the
// configuration, loading the seed file into them when one is set.
func openDirectory(ctx context.Context, cfg config.DirectoryConfig) (tenant.Directory, catalog.Provider, io.Closer, error) {
	var seed *tenant.Seed
	if cfg.Seed != "" {
		s, err := tenant.LoadSeedFile(cfg.Seed)
		if err != nil {
			return nil, nil, nil, err
		}
		seed = s
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if seed != nil {
			if err := db.Import(ctx, seed); err != nil {
				db.Close()
				return nil, nil, nil, fmt.Errorf("import seed: %w", err)
			}
		}
		return db, db, db, nil
	default:
		dir := tenant.NewMemoryDirectory()
		cat := catalog.NewMemory()
		if seed != nil {
			seed.Apply(dir, cat)
		}
		return dir, cat, nil, nil
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{cache.WithPolicy(cachePolicy(cfg.Cache))}
	if cfg.Development.DisableCache {
		cacheOpts = append(cacheOpts, cache.Disabled())
	}
	cm := cache.NewManager(cfg.Cache.MaxBytes, cacheOpts...)

	dir, provider, closer, err := openDirectory(ctx, cfg.Directory)
	if err != nil {
		return nil, err
	}

	engine := liquid.NewEngine()
	store := storage.NewDirStore(cfg.Storage.Root)
	loader := templates.NewLoader(store, cm, engine,
		templates.WithPrefix(cfg.Storage.Prefix),
		templates.WithTimeout(cfg.Storage.UpstreamTimeout),
		templates.WithLogger(logger),
	)
	builder := rendering.NewBuilder(provider,
		rendering.WithSettings(loader),
		rendering.WithTimeout(cfg.Storage.UpstreamTimeout),
		rendering.WithLogger(logger),
	)
	resolver := domain.NewResolver(dir, cm,
		domain.WithReservedDomains(cfg.Platform.ReservedDomains...),
		domain.WithTimeout(cfg.Storage.UpstreamTimeout),
		domain.WithLogger(logger),
	)
	orch, err := pipeline.New(resolver, loader, builder, pipeline.NewPageRenderer(engine), cm,
		pipeline.WithLogger(logger))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		cache:    cm,
		loader:   loader,
		resolver: resolver,
		orch:     orch,
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// loadApp loads configuration and assembles the app.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
