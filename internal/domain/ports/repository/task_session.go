package repository

import (
	"context"

	"dq-agent/internal/domain/model"
)

// TaskSessionRepository is the TaskStore contract. The backing store is an
// eventually consistent object store with no transactions: Update is a
// read-modify-write of the whole record and callers must treat it as an
// idempotent overwrite, never a partial merge.
type TaskSessionRepository interface {
	// Create writes the initial record. Fails with domain.ErrStoreUnavailable
	// on I/O failure; the error is propagated, not retried.
	Create(ctx context.Context, s *model.TaskSession) error

	// Update overwrites status, progress and updated_at of an existing record,
	// preserving created_at. Fails with domain.ErrNotFound when the record
	// does not exist.
	Update(ctx context.Context, taskID string, status model.TaskStatus, progress string) (*model.TaskSession, error)

	// Read returns the current record or domain.ErrNotFound.
	Read(ctx context.Context, taskID string) (*model.TaskSession, error)
}
