package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/prepbot/internal/config"
	"github.com/example/prepbot/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var envFile string

	root := &cobra.Command{
		Use:           "prepbot",
		Short:         "Spaced repetition exam prep bot for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFiles(envFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "path to a .env file")
	flags.String("db-type", "sqlite", "database type (sqlite or postgres)")
	flags.String("database-url", "", "database DSN; a file path for sqlite")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	for key, name := range map[string]string{
		config.KeyDBType:      "db-type",
		config.KeyDatabaseURL: "database-url",
		config.KeyLogLevel:    "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(newServeCmd(v), newImportCmd(v), newCatalogCmd(v), newPurgeCmd(v), newRemindCmd(v))
	return root
}

// loadApp reads the configuration and builds the logger every command uses
func loadApp(v *viper.Viper) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.IsDev())
	slog.SetDefault(log)
	return cfg, log, nil
}

func fail(log *slog.Logger, msg string, err error) error {
	log.Error(msg, "error", err)
	return fmt.Errorf("%s: %w", msg, err)
}
