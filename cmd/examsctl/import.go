package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exams-tracker/internal/app"
	"github.com/joseph-ayodele/exams-tracker/internal/catalog"
	"github.com/joseph-ayodele/exams-tracker/internal/repository"
)

var importCmd = &cobra.Command{
	Use:   "import-catalog <file.csv>",
	Short: "Import the ';' separated procedure catalog",
	Long: `Import the procedure catalog CSV. Rows whose (codigo, terminologia_eventos)
already exist are skipped, so the command can be re-run safely.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := app.OpenDB(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		c, err := app.NewCache(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		if c != nil {
			defer c.Close()
		}

		im, err := catalog.NewImporter(repository.NewProcedureRepository(db, logger), c, logger)
		if err != nil {
			return err
		}
		report, err := im.ImportFile(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
