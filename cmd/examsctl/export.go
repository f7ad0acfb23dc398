package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exams-tracker/internal/app"
	"github.com/joseph-ayodele/exams-tracker/internal/export"
	"github.com/joseph-ayodele/exams-tracker/internal/repository"
)

var (
	exportFrom string
	exportTo   string
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export consultations to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDateFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseDateFlag("to", exportTo)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := app.OpenDB(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer repository.Close(db, logger)

		svc := export.NewService(repository.NewConsultationRepository(db, logger), logger)
		b, err := svc.ExportConsultationsXLSX(ctx, from, to)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(b))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "from date YYYY-MM-DD (inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "to date YYYY-MM-DD (inclusive)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "consultations.xlsx", "output XLSX path")
	rootCmd.AddCommand(exportCmd)
}

func parseDateFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date, use YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}
