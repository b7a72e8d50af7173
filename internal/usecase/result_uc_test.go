package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dq-agent/internal/cache"
	"dq-agent/internal/domain"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/notify"

	"github.com/rs/zerolog"
)

type resultFixture struct {
	uc        *resultUC
	repo      *memTaskRepo
	engine    *stubEngine
	results   *cache.ResultCache
	transport *recordTransport
}

func newResultFixture(t *testing.T) *resultFixture {
	t.Helper()
	logger := zerolog.Nop()
	repo := newMemTaskRepo()
	eng := &stubEngine{reply: "summarized outcome"}
	results := cache.NewResultCache(24 * time.Hour)
	transport := newRecordTransport()
	dispatcher := notify.NewDispatcher(transport, 3, time.Millisecond, &logger)

	uc := NewResultUseCase(repo, eng, results, dispatcher, &logger)
	fixedNow := time.Now().UTC()
	uc.now = func() time.Time { return fixedNow }
	return &resultFixture{uc: uc, repo: repo, engine: eng, results: results, transport: transport}
}

func succeededEvent() model.JobEvent {
	return model.JobEvent{
		Type:           model.EventTypeJobResult,
		EventSource:    "job_poller",
		SessionID:      "sess-1",
		JobName:        "dq-analysis",
		RunID:          "jr_abc",
		Status:         model.RunStateSucceeded,
		ResultPreview:  "SQL Query: SELECT 1\nRow Count: 42\n",
		OutputLocation: "s3://dq-bucket/output/session_sess-1/",
		UserContext:    model.UserContext{UserID: "u-1", Username: "alice"},
		WebsocketURL:   "wss://example/ws",
	}
}

func TestHandleResultRecordsCachesAndNotifies(t *testing.T) {
	t.Parallel()
	f := newResultFixture(t)
	sess := model.NewTaskSession("sess-1", "u-1", "alice", "count orders")
	if err := f.repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reply, err := f.uc.HandleResult(context.Background(), succeededEvent())
	if err != nil {
		t.Fatalf("handle result: %v", err)
	}
	if reply != "summarized outcome" {
		t.Fatalf("expected engine-composed reply, got %q", reply)
	}

	s := f.repo.get("sess-1")
	if s.Status != model.TaskStatusCompleted || s.Progress != reply {
		t.Fatalf("terminal status not recorded: %+v", s)
	}

	cached := f.results.Get("alice")
	if cached == nil || cached.RunID != "jr_abc" || cached.Results != reply {
		t.Fatalf("result not cached for follow-up queries: %+v", cached)
	}
	if f.transport.lastMessage() != reply {
		t.Fatalf("reply not pushed to user, got %q", f.transport.lastMessage())
	}

	prompt := f.engine.lastPrompt()
	if !strings.Contains(prompt, "Final status: SUCCEEDED") || !strings.Contains(prompt, "SQL Query: SELECT 1") {
		t.Fatalf("job outcome missing from engine prompt:\n%s", prompt)
	}
}

func TestHandleResultMarksFailedRuns(t *testing.T) {
	t.Parallel()
	f := newResultFixture(t)
	sess := model.NewTaskSession("sess-1", "u-1", "alice", "count orders")
	if err := f.repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := succeededEvent()
	ev.Status = model.RunStateFailed
	ev.ResultPreview = ""

	if _, err := f.uc.HandleResult(context.Background(), ev); err != nil {
		t.Fatalf("handle result: %v", err)
	}
	if s := f.repo.get("sess-1"); s.Status != model.TaskStatusFailed {
		t.Fatalf("failed run must mark the session FAILED, got %+v", s)
	}
}

func TestHandleResultToleratesUnknownSession(t *testing.T) {
	t.Parallel()
	f := newResultFixture(t)

	reply, err := f.uc.HandleResult(context.Background(), succeededEvent())
	if err != nil {
		t.Fatalf("an unknown session id must not fail the event, got %v", err)
	}
	if f.results.Get("alice") == nil {
		t.Fatal("result must still be cached without a session record")
	}
	if f.transport.lastMessage() != reply {
		t.Fatalf("user must still be notified, got %q", f.transport.lastMessage())
	}
}

func TestHandleResultPropagatesStoreFailures(t *testing.T) {
	t.Parallel()
	f := newResultFixture(t)
	f.repo.updateErr = domain.ErrStoreUnavailable

	_, err := f.uc.HandleResult(context.Background(), succeededEvent())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if f.results.Get("alice") != nil {
		t.Fatal("store failure must keep the cache untouched")
	}
	if len(f.transport.messages) != 0 {
		t.Fatalf("store failure must suppress notification, got %v", f.transport.messages)
	}
}

func TestHandleResultFallsBackWhenEngineUnavailable(t *testing.T) {
	t.Parallel()
	f := newResultFixture(t)
	f.engine.err = errors.New("engine down")

	reply, err := f.uc.HandleResult(context.Background(), succeededEvent())
	if err != nil {
		t.Fatalf("engine outage must not fail the event: %v", err)
	}
	if !strings.Contains(reply, `Your job "dq-analysis" completed successfully.`) {
		t.Fatalf("expected raw fallback reply, got %q", reply)
	}
	if !strings.Contains(reply, "SQL Query: SELECT 1") {
		t.Fatalf("fallback reply must carry the preview, got %q", reply)
	}
}

func TestHandleProgressForwardsTick(t *testing.T) {
	t.Parallel()
	f := newResultFixture(t)

	ev := succeededEvent()
	ev.Type = model.EventTypeJobProgress
	ev.Status = model.RunStateRunning
	ev.ProgressMessage = "Job is running... (running for 3.0 minutes)"

	f.uc.HandleProgress(context.Background(), ev)
	got := f.transport.lastMessage()
	if !strings.Contains(got, "Job progress update: Job is running... (running for 3.0 minutes)") {
		t.Fatalf("progress tick not forwarded, got %q", got)
	}
}
