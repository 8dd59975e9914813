package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [store-id]",
	Short: "Drop cached pages or domain resolutions on a running server",
	Long: `Ask a running server to drop everything cached for a store, as a theme
publish does. With --domain, the cached store resolution of each domain is
dropped too, for domains that moved or were removed.

Examples:
  storefront invalidate 123
  storefront invalidate 123 --server https://render.internal --token $TOKEN
  storefront invalidate --domain mitienda.com --domain www.mitienda.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInvalidate,
}

var invalidateFlags struct {
	server  string
	token   string
	domains []string
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
	f := invalidateCmd.Flags()
	f.StringVar(&invalidateFlags.server, "server", "http://localhost:8080", "base URL of the server")
	f.StringVar(&invalidateFlags.token, "token", "", "admin token (default server.admin_token)")
	f.StringSliceVar(&invalidateFlags.domains, "domain", nil, "domain whose store resolution to drop (repeatable)")
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(invalidateFlags.domains) == 0 {
		return fmt.Errorf("a store id or --domain is required")
	}

	token := invalidateFlags.token
	if token == "" {
		if cfg, err := loadConfig(); err == nil {
			token = cfg.Server.AdminToken
		}
	}
	base := strings.TrimRight(invalidateFlags.server, "/")
	client := &http.Client{Timeout: 10 * time.Second}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		var body struct {
			StoreID     string `json:"store_id"`
			Invalidated int    `json:"invalidated"`
		}
		endpoint := base + "/api/stores/" + url.PathEscape(args[0]) + "/cache"
		if err := deleteCache(cmd.Context(), client, endpoint, token, &body); err != nil {
			return fmt.Errorf("invalidate %s: %w", args[0], err)
		}
		fmt.Fprintf(out, "store %s: %d cache entries dropped\n", body.StoreID, body.Invalidated)
	}

	for _, d := range invalidateFlags.domains {
		var body struct {
			Domain      string `json:"domain"`
			Invalidated bool   `json:"invalidated"`
		}
		endpoint := base + "/api/domains/" + url.PathEscape(d) + "/cache"
		if err := deleteCache(cmd.Context(), client, endpoint, token, &body); err != nil {
			return fmt.Errorf("invalidate domain %s: %w", d, err)
		}
		if body.Invalidated {
			fmt.Fprintf(out, "domain %s: resolution dropped\n", body.Domain)
		} else {
			fmt.Fprintf(out, "domain %s: nothing cached\n", body.Domain)
		}
	}
	return nil
}

// deleteCache sends an authenticated DELETE and decodes the JSON reply
// into v.
func deleteCache(ctx context.Context, client *http.Client, endpoint, token string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
