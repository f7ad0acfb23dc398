package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exams-tracker/internal/app"
	"github.com/joseph-ayodele/exams-tracker/internal/async"
	"github.com/joseph-ayodele/exams-tracker/internal/ingest"
)

var (
	watchInitialScan bool
	watchDebounce    time.Duration
	watchWorkers     int
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Process documents as they are dropped into the given directories",
	Long: `Watch directories recursively and process every new PDF or image through
the worker queue. Source files are left in place. Stops on SIGINT or SIGTERM.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitialScan, "initial-scan", false, "also process files already present")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "wait this long after the last write before processing a file")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 4, "number of documents processed concurrently")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitialScan,
		Debounce:    watchDebounce,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	results := make(chan async.Result, 64)
	q := async.NewProcessorQueue(a.Intake, logger,
		async.WithWorkers(watchWorkers),
		async.WithProcessTimeout(cfg.OCR.ProcessTimeout*2),
		async.WithResults(results),
	)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		enc := json.NewEncoder(cmd.OutOrStdout())
		for r := range results {
			line := processLine{Path: r.Job.Path, ElapsedMS: r.Elapsed.Milliseconds()}
			if r.Err != nil {
				line.Error = r.Err.Error()
			} else {
				line.Protocol = r.Outcome.Protocol
				line.Exams = len(r.Outcome.Result.Exams)
				line.RequiresSignature = r.Outcome.Result.RequiresSignature
			}
			_ = enc.Encode(line)
		}
	}()

	logger.Info("watching for documents", "roots", args)
loop:
	for {
		select {
		case p, ok := <-events:
			if !ok {
				break loop
			}
			if err := q.Enqueue(ctx, async.Job{Path: p}); err != nil {
				logger.Warn("document not queued", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch error", "error", err)
		case <-ctx.Done():
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	q.Shutdown(shutdownCtx)
	if shutdownCtx.Err() != nil {
		// Workers may still write results; leave the channel open.
		return shutdownCtx.Err()
	}
	close(results)
	<-printed
	return nil
}
