package glue

import (
	"context"
	"fmt"

	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/adapter"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsglue "github.com/aws/aws-sdk-go-v2/service/glue"
)

// Compile-time check
var _ adapter.RunStateReader = (*RunStateReader)(nil)

// RunStateReader reads Glue job run states. States outside the poller's
// vocabulary (STARTING, STOPPING, WAITING...) map to RUNNING: the run is
// not terminal yet, which is the only thing the poller cares about.
type RunStateReader struct {
	client *awsglue.Client
}

func NewRunStateReader(client *awsglue.Client) *RunStateReader {
	return &RunStateReader{client: client}
}

func (r *RunStateReader) ReadRunState(ctx context.Context, jobName, runID string) (model.RunState, error) {
	out, err := r.client.GetJobRun(ctx, &awsglue.GetJobRunInput{
		JobName: aws.String(jobName),
		RunId:   aws.String(runID),
	})
	if err != nil {
		return "", fmt.Errorf("get job run %s/%s: %w", jobName, runID, err)
	}
	if out.JobRun == nil {
		return "", fmt.Errorf("get job run %s/%s: empty response", jobName, runID)
	}

	switch state := model.RunState(out.JobRun.JobRunState); state {
	case model.RunStateSucceeded, model.RunStateFailed, model.RunStateStopped, model.RunStateTimeout:
		return state, nil
	default:
		return model.RunStateRunning, nil
	}
}
