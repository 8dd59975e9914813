package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/storefront/internal/version"
)

var versionOutput OutputFormat

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if versionOutput == OutputJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(version.GetBuildInfo())
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	addOutputFlag(versionCmd.Flags(), &versionOutput)
}
