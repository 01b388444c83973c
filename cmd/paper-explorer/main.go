// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-explorer CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-explorer/internal/explorer"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the paper-explorer CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-explorer",
	Short: "Load, search, and browse a sharded research-paper corpus",
	Long: `paper-explorer downloads a sharded research-paper corpus, decompresses and
deduplicates it into a local SQLite store, and builds a full-text index over
titles and abstracts.

Run load once to populate the store, then use list, search, and facets to
browse it. The store persists between runs under --data-dir.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-explorer.yaml or ~/.config/paper-explorer/paper-explorer.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the paper store (default \"data\")")
	rootCmd.PersistentFlags().String("base-url", "", "content root holding the manifest and shards")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log pipeline activity to stderr")

	_ = viper.BindPFlag("store.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("fetch.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-explorer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-explorer"))
		}
	}

	viper.SetEnvPrefix("PAPER_EXPLORER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// explorerConfig merges the config file, environment, and bound flags
// over the built-in defaults.
func explorerConfig() (types.ExplorerConfig, error) {
	cfg := types.DefaultExplorerConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	return cfg.WithDefaults(), nil
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// openExplorer builds an Explorer from the merged configuration. The
// caller closes it.
func openExplorer(cmd *cobra.Command, opts explorer.Options) (*explorer.Explorer, error) {
	cfg, err := explorerConfig()
	if err != nil {
		return nil, err
	}
	return explorer.New(cfg, opts, newLogger(cmd))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
