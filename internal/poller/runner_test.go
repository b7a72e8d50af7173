package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"dq-agent/internal/domain/model"

	"github.com/rs/zerolog"
)

type scriptedReader struct {
	states []model.RunState
	errs   []error
	i      int
}

func (s *scriptedReader) ReadRunState(ctx context.Context, jobName, runID string) (model.RunState, error) {
	idx := s.i
	s.i++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx >= len(s.states) {
		return s.states[len(s.states)-1], nil
	}
	return s.states[idx], nil
}

type fakeHarvester struct {
	preview  string
	location string
	calls    int
}

func (f *fakeHarvester) Harvest(ctx context.Context, sessionID string) (string, string) {
	f.calls++
	return f.preview, f.location
}

func newTestRunner(reader *scriptedReader, h Harvester) *Runner {
	logger := zerolog.Nop()
	r := NewRunner(reader, h, time.Minute, 3, 6*time.Hour, &logger)
	cur := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return cur }
	r.sleep = func(ctx context.Context, d time.Duration) { cur = cur.Add(d) }
	return r
}

func testSession() Session {
	return Session{
		SessionID:    "sess-1",
		JobName:      "dq-analysis",
		RunID:        "jr_abc",
		User:         model.UserContext{UserID: "u-1", Username: "alice"},
		WebsocketURL: "wss://example/ws",
	}
}

func TestRunEmitsProgressThenHarvestsOnSuccess(t *testing.T) {
	t.Parallel()
	reader := &scriptedReader{states: []model.RunState{
		model.RunStateRunning, model.RunStateRunning, model.RunStateRunning,
		model.RunStateSucceeded,
	}}
	h := &fakeHarvester{preview: "SQL Query: SELECT 1", location: "s3://bucket/output/sess-1/"}
	r := newTestRunner(reader, h)

	var progress []model.JobEvent
	result := r.Run(context.Background(), testSession(), func(ev model.JobEvent) {
		progress = append(progress, ev)
	})

	if len(progress) != 1 {
		t.Fatalf("expected one progress event over 3 running polls, got %d", len(progress))
	}
	pe := progress[0]
	if pe.Type != model.EventTypeJobProgress || pe.Status != model.RunStateRunning {
		t.Fatalf("unexpected progress event %+v", pe)
	}
	if pe.ProgressMessage != "Job is running... (running for 2.0 minutes)" {
		t.Fatalf("unexpected progress message %q", pe.ProgressMessage)
	}

	if result.Type != model.EventTypeJobResult || result.Status != model.RunStateSucceeded {
		t.Fatalf("unexpected result event %+v", result)
	}
	if h.calls != 1 || result.ResultPreview != h.preview || result.OutputLocation != h.location {
		t.Fatalf("successful run must be harvested exactly once: calls=%d result=%+v", h.calls, result)
	}
	if result.SessionID != "sess-1" || result.UserContext.Username != "alice" {
		t.Fatalf("session identity must flow into the result: %+v", result)
	}
}

func TestRunSkipsHarvestOnFailure(t *testing.T) {
	t.Parallel()
	reader := &scriptedReader{states: []model.RunState{model.RunStateRunning, model.RunStateFailed}}
	h := &fakeHarvester{preview: "should not appear"}
	r := newTestRunner(reader, h)

	result := r.Run(context.Background(), testSession(), nil)
	if result.Status != model.RunStateFailed {
		t.Fatalf("expected FAILED result, got %s", result.Status)
	}
	if h.calls != 0 || result.ResultPreview != "" {
		t.Fatalf("failed runs must not be harvested: calls=%d preview=%q", h.calls, result.ResultPreview)
	}
}

func TestRunSurvivesReadErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("throttled")
	reader := &scriptedReader{
		states: []model.RunState{model.RunStateRunning, "", model.RunStateSucceeded},
		errs:   []error{nil, boom, nil},
	}
	r := newTestRunner(reader, &fakeHarvester{})

	result := r.Run(context.Background(), testSession(), nil)
	if result.Status != model.RunStateSucceeded {
		t.Fatalf("transient read errors must not end the watch, got %s", result.Status)
	}
}

func TestRunForcesTimeoutOnCancellation(t *testing.T) {
	t.Parallel()
	reader := &scriptedReader{states: []model.RunState{model.RunStateRunning}}
	r := newTestRunner(reader, &fakeHarvester{})

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, d time.Duration) { cancel() }

	result := r.Run(ctx, testSession(), nil)
	if result.Status != model.RunStateTimeout {
		t.Fatalf("cancelled watch must report TIMEOUT, got %s", result.Status)
	}
}
