package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/prepbot/internal/database"
)

func newCatalogCmd(v *viper.Viper) *cobra.Command {
	var (
		kind  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List catalog items of one kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp(v)
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.DBType, cfg.DatabaseURL)
			if err != nil {
				return fail(log, "failed to connect to database", err)
			}
			defer db.Close()

			repo := database.NewItemRepository(db)
			items, err := repo.ListByKind(cmd.Context(), kind, limit)
			if err != nil {
				return fail(log, "failed to list items", err)
			}
			total, err := repo.Count(cmd.Context())
			if err != nil {
				return fail(log, "failed to count items", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOPIC\tPROMPT\tANSWER")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.Topic, item.Prompt, item.Answer)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s items shown, %d items in catalog\n", len(items), kind, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "vocab", "item kind to list (vocab, idiom, gk)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of items to list")
	return cmd
}

func newPurgeCmd(v *viper.Viper) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every review record of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			cfg, log, err := loadApp(v)
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.DBType, cfg.DatabaseURL)
			if err != nil {
				return fail(log, "failed to connect to database", err)
			}
			defer db.Close()

			n, err := database.NewReviewRecordRepository(db).Purge(cmd.Context(), userID)
			if err != nil {
				return fail(log, "purge failed", err)
			}
			log.Info("review records purged", "user_id", userID, "records", n)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d review records of user %d\n", n, userID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Telegram user ID")
	return cmd
}

func newRemindCmd(v *viper.Viper) *cobra.Command {
	var (
		userID int64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run the reminder check once, for every user due this hour or for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp(v)
			if err != nil {
				return err
			}
			if cfg.TelegramToken == "" {
				return fail(log, "missing configuration", errors.New("TELEGRAM_BOT_TOKEN is not set"))
			}

			db, err := database.Connect(cfg.DBType, cfg.DatabaseURL)
			if err != nil {
				return fail(log, "failed to connect to database", err)
			}
			defer db.Close()

			app, err := newBotApp(cfg, log, db, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			if userID != 0 {
				sent, err := app.reminders.RunManualCheck(cmd.Context(), userID, limit)
				if err != nil {
					return fail(log, "reminder failed", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reminder sent to user %d: %t\n", userID, sent)
				return nil
			}

			n, err := app.reminders.CheckAndSendReminders(cmd.Context())
			if err != nil {
				return fail(log, "reminder check failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notified %d users\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "remind only this Telegram user, ignoring the notification hour")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap on the due count (default: session size)")
	return cmd
}
