package core

import (
	"context"
	"time"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
)

// Job is a deferred auto-schedule occurrence.
type Job struct {
	DefinitionID string          `json:"definitionId"`
	TimeOfDay    model.TimeOfDay `json:"timeOfDay"`
}

// JobHandler runs a job once its delay has elapsed.
type JobHandler func(ctx context.Context, job Job)

// JobScheduler defers jobs. Cancelling an unknown or fired job is not an error.
type JobScheduler interface {
	Schedule(ctx context.Context, job Job, delay time.Duration) (string, error)
	Cancel(ctx context.Context, jobID string) error
}
