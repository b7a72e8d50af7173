package adapter

import (
	"context"

	"dq-agent/internal/domain/model"
)

// RunStateReader reads the current run state of an external analytical job.
// Transient read errors are reported as-is; the poller treats them as a
// no-op for that cycle.
type RunStateReader interface {
	ReadRunState(ctx context.Context, jobName, runID string) (model.RunState, error)
}
