package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/conneroisu/storefront/internal/rendering"
)

var renderCmd = &cobra.Command{
	Use:     "render [path]",
	Aliases: []string{"r"},
	Short:   "Render one storefront page to stdout",
	Long: `Render a page exactly as the server would and print the HTML.
The status code goes to stderr; a failed render makes the command fail.

Examples:
  storefront render --host mitienda.com
  storefront render --host mitienda.com /products/camiseta-basica
  storefront render --host mitienda.com --cart abc /cart`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

var renderFlags struct {
	host string
	cart string
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVar(&renderFlags.host, "host", "", "store domain to render for")
	renderCmd.Flags().StringVar(&renderFlags.cart, "cart", "", "cart token")
	_ = renderCmd.MarkFlagRequired("host")
}

func runRender(cmd *cobra.Command, args []string) error {
	target := "/"
	if len(args) == 1 {
		target = args[0]
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", target, err)
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	pageType, params := rendering.ParamsFromURL(u, renderFlags.cart)
	resp := a.orch.RenderResponse(cmd.Context(), renderFlags.host, pageType, params)

	fmt.Fprintln(cmd.OutOrStdout(), resp.HTML)
	fmt.Fprintf(cmd.ErrOrStderr(), "status %d (%s)\n", resp.StatusCode, pageType)
	if resp.Err != nil {
		return fmt.Errorf("render %s%s: %w", renderFlags.host, u.Path, resp.Err)
	}
	return nil
}
