package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/storefront/internal/templates"
)

var validateCmd = &cobra.Command{
	Use:   "validate <store-id>...",
	Short: "Check that store themes compile",
	Long: `Validate every Liquid and JSON file of the given store themes and check
that the required files exist.

Examples:
  storefront validate 123
  storefront validate 123 456 -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var validateOutput OutputFormat

func init() {
	rootCmd.AddCommand(validateCmd)
	addOutputFlag(validateCmd.Flags(), &validateOutput)
}

type validationResult struct {
	StoreID  string   `json:"store_id"`
	Files    int      `json:"files"`
	Problems []string `json:"problems"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]validationResult, 0, len(args))
	failed := 0
	for _, id := range args {
		report, err := a.loader.ValidateTheme(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("validate %s: %w", id, err)
		}
		results = append(results, toResult(report))
		if !report.OK() {
			failed++
		}
	}

	out := cmd.OutOrStdout()
	if validateOutput == OutputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if len(r.Problems) == 0 {
				fmt.Fprintf(out, "%s: ok (%d files)\n", r.StoreID, r.Files)
				continue
			}
			fmt.Fprintf(out, "%s: %d problem(s) in %d files\n", r.StoreID, len(r.Problems), r.Files)
			for _, p := range r.Problems {
				fmt.Fprintf(out, "  %s\n", p)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d themes failed validation", failed, len(args))
	}
	return nil
}

func toResult(r *templates.Report) validationResult {
	res := validationResult{StoreID: r.StoreID, Files: len(r.Files), Problems: []string{}}
	for _, p := range r.Problems {
		res.Problems = append(res.Problems, p.String())
	}
	return res
}
