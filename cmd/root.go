// Package cmd is the storefront command line.
//
// Configuration is read from, highest priority first: command-line flags,
// STOREFRONT_<SECTION>_<KEY> environment variables, the file named by
// --config or STOREFRONT_CONFIG_FILE, and .storefront.yml in the working
// directory.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/storefront/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Multi-tenant storefront renderer",
	Long: `storefront renders Liquid themes for many stores from one process.
Each request is routed by host name to a store, whose theme and catalog
data are combined into a cached HTML page.

Quick start:
  storefront serve --seed stores.yml --themes ./themes
  storefront render --host mitienda.com /products/camiseta-basica
  storefront validate 123`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default .storefront.yml, or STOREFRONT_CONFIG_FILE)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("themes", "./themes", "directory holding theme files")
	pf.String("seed", "", "YAML file with stores and catalog data")
	pf.String("driver", config.DriverMemory, "store directory driver (memory, sqlite)")
	pf.String("dsn", "", "SQLite data source name")

	bindFlags(pf, map[string]string{
		"log.level":        "log-level",
		"log.format":       "log-format",
		"storage.root":     "themes",
		"directory.seed":   "seed",
		"directory.driver": "driver",
		"directory.dsn":    "dsn",
	})
}

func initConfig() {
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv("STOREFRONT_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv("STOREFRONT_CONFIG_FILE"))
	default:
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".storefront")
	}
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Warning: could not read config file:", strings.TrimSpace(err.Error()))
	}
}
