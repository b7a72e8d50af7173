package s3store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dq-agent/internal/domain"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// ObjectAPI is the slice of the S3 client the task store needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Compile-time check
var _ repository.TaskSessionRepository = (*TaskStore)(nil)

// TaskStore keeps one JSON document per task at <prefix>/<task_id>/status.json.
// The object store gives no transactions; every write replaces the whole
// document and concurrent writers resolve last-write-wins.
type TaskStore struct {
	api    ObjectAPI
	bucket string
	prefix string
	log    *zerolog.Logger
	now    func() time.Time
}

func NewTaskStore(api ObjectAPI, bucket, prefix string, logger *zerolog.Logger) *TaskStore {
	compLog := logger.With().Str("component", "TaskStore").Logger()
	return &TaskStore{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    &compLog,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (ts *TaskStore) key(taskID string) string {
	return fmt.Sprintf("%s/%s/status.json", ts.prefix, taskID)
}

func (ts *TaskStore) Create(ctx context.Context, s *model.TaskSession) error {
	if err := ts.write(ctx, s); err != nil {
		ts.log.Error().Err(err).Str("task_id", s.TaskID).Msg("failed to create task session")
		return fmt.Errorf("create task session: %w", err)
	}
	ts.log.Info().Str("task_id", s.TaskID).Str("username", s.Username).Msg("created task session")
	return nil
}

func (ts *TaskStore) Update(ctx context.Context, taskID string, status model.TaskStatus, progress string) (*model.TaskSession, error) {
	s, err := ts.Read(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.Status = status
	s.Progress = progress
	s.UpdatedAt = ts.now()

	if err := ts.write(ctx, s); err != nil {
		ts.log.Error().Err(err).Str("task_id", taskID).Msg("failed to update task session")
		return nil, fmt.Errorf("update task session: %w", err)
	}
	ts.log.Info().Str("task_id", taskID).Str("status", string(status)).Msg("updated task session")
	return s, nil
}

func (ts *TaskStore) Read(ctx context.Context, taskID string) (*model.TaskSession, error) {
	out, err := ts.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ts.bucket),
		Key:    aws.String(ts.key(taskID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read task session: %w: %v", domain.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read task session body: %w: %v", domain.ErrStoreUnavailable, err)
	}

	var s model.TaskSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode task session %s: %w", taskID, err)
	}
	return &s, nil
}

func (ts *TaskStore) write(ctx context.Context, s *model.TaskSession) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = ts.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ts.bucket),
		Key:         aws.String(ts.key(s.TaskID)),
		Body:        strings.NewReader(string(body)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
