// Package jobs defers auto-schedule jobs, either in process memory or in
// Redis so that pending jobs survive a restart.
package jobs

import (
	"context"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// Scheduler is a core.JobScheduler that delivers due jobs while Run is active.
type Scheduler interface {
	core.JobScheduler

	// Run delivers due jobs to handle until ctx is cancelled.
	Run(ctx context.Context, handle core.JobHandler) error
}

// New returns the Redis scheduler when Redis is configured and the in-memory
// one otherwise.
func New(ctx context.Context, opts *options.RedisOptions) (Scheduler, error) {
	if !opts.Enabled() {
		return NewMemory(), nil
	}
	return NewRedis(ctx, opts)
}
