package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/storefront/internal/cache"
	"github.com/conneroisu/storefront/internal/devsync"
	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/server"
	"github.com/conneroisu/storefront/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve storefront traffic",
	Long: `Serve storefront pages for every store in the directory. Requests are
routed by their Host header.

With --hot-reload, theme files are watched: a change drops the store's
cached pages and notifies editors connected to /dev/sync?store=<id>.

Examples:
  storefront serve --seed stores.yml
  storefront serve --driver sqlite --dsn file:stores.db --port 9000
  STOREFRONT_SERVER_ENVIRONMENT=production storefront serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.IntP("port", "p", 8080, "port to serve on")
	f.String("host", "localhost", "host to bind to")
	f.Bool("hot-reload", false, "watch theme files and notify editors")
	f.Bool("no-cache", false, "disable the page and template caches")

	bindFlags(f, map[string]string{
		"server.port":               "port",
		"server.host":               "host",
		"development.hot_reload":    "hot-reload",
		"development.disable_cache": "no-cache",
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	a.cache.StartJanitor(ctx, a.cfg.Cache.JanitorInterval)

	opts := []server.Option{server.WithLogger(a.logger), server.WithDomains(a.resolver)}
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Development.HotReload {
		hub := devsync.NewHub(
			devsync.WithOrigins(a.cfg.Server.AllowedOrigins...),
			devsync.WithLogger(a.logger),
		)
		defer hub.Shutdown(context.Background())

		w, err := watcher.New(filepath.Join(a.cfg.Storage.Root, filepath.FromSlash(a.cfg.Storage.Prefix)),
			watcher.WithDebounce(a.cfg.Development.Debounce),
			watcher.WithLogger(a.logger),
			watcher.WithFilter(watcher.ThemeFileFilter),
		)
		if err != nil {
			return fmt.Errorf("failed to create theme watcher: %w", err)
		}
		w.AddHandler(reloadHandler(a.cache, hub, a.logger))
		g.Go(func() error { return w.Run(gctx) })

		opts = append(opts, server.WithDevSync(hub))
	}

	srv := server.New(server.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		AdminToken:   a.cfg.Server.AdminToken,
	}, a.orch, a.cache, a.loader, opts...)

	g.Go(func() error { return srv.ListenAndServe(gctx) })
	return g.Wait()
}

// reloadHandler drops the cache of every store whose theme changed and
// tells its editors.
func reloadHandler(cm *cache.Manager, hub *devsync.Hub, logger logging.Logger) watcher.Handler {
	return func(ctx context.Context, changes []watcher.StoreChange) error {
		for _, c := range changes {
			n := cm.InvalidateStore(c.StoreID)
			logger.Info(ctx, "theme changed", "store_id", c.StoreID, "files", len(c.Paths), "invalidated", n)
			if err := hub.Publish(devsync.Event{
				Type:    devsync.EventThemeChanged,
				StoreID: c.StoreID,
				Paths:   c.Paths,
			}); err != nil {
				return err
			}
		}
		return nil
	}
}
