package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exams-tracker/internal/app"
	"github.com/joseph-ayodele/exams-tracker/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and report catalog size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := app.OpenDB(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		n, err := repository.NewProcedureRepository(db, logger).Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s), procedures: %d\n", db.Dialect, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
