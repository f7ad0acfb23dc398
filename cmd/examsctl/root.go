package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
)

var (
	cfgFile string
	verbose bool

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "examsctl",
	Short: "Operate the exam intake store from the command line",
	Long: `examsctl migrates the database, imports the procedure catalog,
processes scanned exam requests in batch and exports consultations to XLSX.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		c, err := common.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			c.Log.Level = "debug"
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		logger = common.NewLogger(c.Log, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("EXAMS_CONFIG"), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command; SIGINT and SIGTERM cancel its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
