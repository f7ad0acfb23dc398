package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/app"
	"github.com/joseph-ayodele/exams-tracker/internal/async"
)

var (
	processDir     string
	processWorkers int
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process documents in batch and record a consultation for each",
	Long: `Process each document through OCR, exam parsing and deadline resolution.
Input files are copied before processing and are never deleted. One JSON line
is printed per document.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processDir, "dir", "", "also process every supported file under this directory")
	processCmd.Flags().IntVar(&processWorkers, "workers", 4, "number of documents processed concurrently")
	rootCmd.AddCommand(processCmd)
}

type processLine struct {
	Path              string `json:"path"`
	Protocol          string `json:"protocol,omitempty"`
	Exams             int    `json:"exams"`
	RequiresSignature bool   `json:"requires_signature"`
	Error             string `json:"error,omitempty"`
	ElapsedMS         int64  `json:"elapsed_ms"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	paths := append([]string{}, args...)
	if processDir != "" {
		found, err := collectDocuments(processDir)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no documents given; pass files or --dir")
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make(chan async.Result, len(paths))
	q := async.NewProcessorQueue(a.Intake, logger,
		async.WithWorkers(processWorkers),
		async.WithQueueSize(len(paths)),
		async.WithProcessTimeout(cfg.OCR.ProcessTimeout*2),
		async.WithResults(results),
	)
	for _, p := range paths {
		if err := q.Enqueue(ctx, async.Job{Path: p}); err != nil {
			q.Shutdown(context.Background())
			return err
		}
	}
	q.Shutdown(context.Background())
	close(results)

	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for r := range results {
		line := processLine{Path: r.Job.Path, ElapsedMS: r.Elapsed.Milliseconds()}
		if r.Err != nil {
			failed++
			line.Error = r.Err.Error()
		} else {
			line.Protocol = r.Outcome.Protocol
			line.Exams = len(r.Outcome.Result.Exams)
			line.RequiresSignature = r.Outcome.Result.RequiresSignature
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(paths))
	}
	return nil
}

// collectDocuments walks root and returns files with a supported extension,
// skipping hidden entries.
func collectDocuments(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && constants.MediaTypeForExt(filepath.Ext(path)) != "" {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
