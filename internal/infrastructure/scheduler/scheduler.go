// Package scheduler runs the engine's periodic work, such as the nightly
// roll-up, on cron expressions evaluated in the configured timezone.
package scheduler

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	JobName string
	Desc    string
	Fn      func(ctx context.Context) error
}

// Name returns the job name.
func (j JobFunc) Name() string { return j.JobName }

// Description returns the job description.
func (j JobFunc) Description() string { return j.Desc }

// Run calls Fn.
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }
