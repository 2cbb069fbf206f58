package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/prepbot/internal/database"
	"github.com/example/prepbot/internal/excel"
)

func newImportCmd(v *viper.Viper) *cobra.Command {
	importCfg := excel.DefaultImportConfig()

	cmd := &cobra.Command{
		Use:   "import <file.xlsx|file.csv>",
		Short: "Import catalog items (id, kind, prompt, answer, details, topic) from a spreadsheet",
		Args:  cobra.ExactArgs(1),
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

			importCfg.FilePath = args[0]
			repo := database.NewItemRepository(db)
			result, err := excel.ImportItems(cmd.Context(), importCfg, repo)
			if err != nil {
				return fail(log, "import failed", err)
			}
			total, err := repo.Count(cmd.Context())
			if err != nil {
				return fail(log, "failed to count items", err)
			}

			for _, msg := range result.Errors {
				log.Warn("row not imported", "detail", msg)
			}
			log.Info("import finished", "file", importCfg.FilePath, "processed", result.TotalProcessed,
				"created", result.Created, "updated", result.Updated, "skipped", result.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d rows: %d created, %d updated, %d skipped, %d errors\n",
				result.TotalProcessed, result.Created, result.Updated, result.Skipped, len(result.Errors))
			fmt.Fprintf(cmd.OutOrStdout(), "catalog now holds %d items\n", total)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&importCfg.SheetName, "sheet", importCfg.SheetName, "sheet to read from xlsx files")
	flags.IntVar(&importCfg.StartRow, "start-row", importCfg.StartRow, "first data row (1-based)")
	flags.StringVar(&importCfg.DefaultKind, "default-kind", importCfg.DefaultKind, "kind for rows without one")
	flags.StringVar(&importCfg.IDColumn, "id-column", importCfg.IDColumn, "column with item IDs, empty to derive them")
	return cmd
}
