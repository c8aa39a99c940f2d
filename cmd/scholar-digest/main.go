// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the scholar-digest CLI. It runs the
// alert ETL once per invocation; scheduling is left to cron or a systemd
// timer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/scholar-digest/internal/logging"
	"github.com/pdiddy/scholar-digest/internal/secrets"
	"github.com/pdiddy/scholar-digest/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Process-wide state assembled in PersistentPreRunE.
var (
	cfg           types.Config
	logger        = zap.NewNop()
	loadedSecrets secrets.Secrets
)

// rootCmd is the base command for the scholar-digest CLI.
var rootCmd = &cobra.Command{
	Use:   "scholar-digest",
	Short: "Collect Google Scholar alert emails into a weekly paper digest",
	Long: `scholar-digest searches a mailbox for Google Scholar alert emails, extracts
the papers they announce, drops papers already recorded, merges duplicates,
and appends the new entries to a store partitioned by calendar week.

Run it from a scheduler: "run" processes the last week, "backfill" walks a
historical range in chunks. Both are safe to repeat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = c

		l, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(cfg.SecretsDir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			logger.Debug("loaded secrets", zap.Strings("keys", s.Keys()))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./scholar-digest.yaml or ~/.config/scholar-digest/scholar-digest.yaml)")
	flags.String("db", "", "SQLite store path (default data/scholar.db)")
	flags.String("maildir", "", "directory of alert messages for the maildir source")
	flags.String("source", "", "mail source: maildir or gmail")
	flags.String("strategy", "", "identity strategy: title or link")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	bindFlag("store.path", "db")
	bindFlag("mail.maildir", "maildir")
	bindFlag("mail.source", "source")
	bindFlag("pipeline.strategy", "strategy")
	bindFlag("log_level", "log-level")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() {
	// A missing .env is normal; anything it sets becomes SCHOLAR_DIGEST_* input.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "reading .env:", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("scholar-digest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "scholar-digest"))
		}
	}

	setDefaults(viper.GetViper(), types.DefaultConfig())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
