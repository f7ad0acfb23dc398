package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/exams-tracker/internal/services/intake"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting to be processed.
type Job struct {
	Path         string
	MediaType    string // optional; inferred from the extension when empty
	OriginalName string
	SubmittedAt  time.Time
}

// Result reports the outcome of one job. Exactly one of Outcome and Err is set.
type Result struct {
	Job     Job
	Outcome *intake.Outcome
	Err     error
	Elapsed time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
