// Package main provides the rendercrawl service: an HTTP API that renders
// pages in a shared headless Chromium and returns their HTML.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/rendercrawl/pkg/config"
)

const version = "0.1.0"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFiles   []string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "rendercrawl",
		Short: "Render web pages in a headless browser and return their HTML",
		Long: `rendercrawl renders URLs in a shared headless Chromium and returns the
fully rendered HTML and page title.

Run 'rendercrawl serve' to start the HTTP API (POST /crawl, GET /health),
or 'rendercrawl crawl <url>' to render a single page and print the result.

Configuration is read from the file given with --config, then .env files,
then RENDERCRAWL_* environment variables, then command-line flags.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Env files to load before reading RENDERCRAWL_* variables")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newCrawlCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rendercrawl v%s\n", version)
		},
	}
}

// loadConfig resolves the effective configuration for a command.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if _, err := config.LoadEnvFiles(o.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Logging.Verbosity = "verbose"
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
