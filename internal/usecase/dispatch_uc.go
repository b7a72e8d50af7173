// File: internal/usecase/dispatch_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dq-agent/internal/cache"
	"dq-agent/internal/domain"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/adapter"
	"dq-agent/internal/domain/ports/repository"
	"dq-agent/internal/infra/logging"
	"dq-agent/internal/infra/metrics"
	"dq-agent/internal/infra/worker"
	"dq-agent/internal/notify"
)

// Compile-time check
var _ DispatchUseCase = (*dispatchUC)(nil)

// DispatchResult is what the HTTP layer renders back to the client.
type DispatchResult struct {
	Path         ProcessingPath
	Text         string // sync reply
	TaskID       string // async handle
	Status       model.TaskStatus
	Message      string
	WebsocketURL string
}

type DispatchUseCase interface {
	// Handle classifies the request, answers cheap ones inline, and for
	// expensive ones creates a task session and returns immediately while a
	// background task does the work.
	Handle(ctx context.Context, user adapter.Identity, text, sourceIP, websocketURL string) (*DispatchResult, error)

	// TaskStatus reads a task session, enforcing ownership.
	TaskStatus(ctx context.Context, user adapter.Identity, taskID string) (*model.TaskSession, error)
}

type dispatchUC struct {
	tasks      repository.TaskSessionRepository
	engine     adapter.AgentEngine
	results    *cache.ResultCache
	pool       *worker.Pool
	dispatcher *notify.Dispatcher
	log        *zerolog.Logger
}

func NewDispatchUseCase(
	tasks repository.TaskSessionRepository,
	engine adapter.AgentEngine,
	results *cache.ResultCache,
	pool *worker.Pool,
	dispatcher *notify.Dispatcher,
	logger *zerolog.Logger,
) *dispatchUC {
	compLog := logger.With().Str("component", "RequestDispatcher").Logger()
	return &dispatchUC{
		tasks:      tasks,
		engine:     engine,
		results:    results,
		pool:       pool,
		dispatcher: dispatcher,
		log:        &compLog,
	}
}

func (d *dispatchUC) Handle(ctx context.Context, user adapter.Identity, text, sourceIP, websocketURL string) (*DispatchResult, error) {
	defer logging.TraceDuration(d.log, "RequestDispatcher.Handle")()
	log := logging.With(ctx, d.log)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrInvalidArgument
	}

	prompt := compositePrompt(user, sourceIP, text)

	// A just-completed job may already be sitting in the result cache; a
	// status question should see it without touching the job system.
	if IsStatusQuery(text) {
		if cached := d.results.Get(user.Name); cached != nil {
			prompt = cachedResultsBlock(cached) + "\n\nUser Query: " + prompt
			log.Info().Str("username", user.Name).Msg("injected cached job results into status query")
		}
	}

	path := Classify(text)
	metrics.IncDispatch(string(path))

	if path == PathSync {
		log.Info().Str("username", user.Name).Msg("processing request synchronously")
		reply, err := d.engine.Prompt(ctx, user, prompt)
		if err != nil {
			return nil, err
		}
		return &DispatchResult{Path: PathSync, Text: reply}, nil
	}

	// Async path: the task session must exist durably before we return the
	// handle to the client. A store failure here aborts the request.
	taskID := uuid.NewString()
	session := model.NewTaskSession(taskID, user.ID, user.Name, prompt)
	if err := d.tasks.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := d.pool.Submit(func(taskCtx context.Context) error {
		d.processAsync(taskCtx, taskID, user, prompt, websocketURL)
		return nil
	}); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("could not start background task")
		_, _ = d.tasks.Update(ctx, taskID, model.TaskStatusFailed, "Processing could not be started: "+err.Error())
		return nil, err
	}

	log.Info().Str("task_id", taskID).Str("username", user.Name).Msg("processing request asynchronously")
	return &DispatchResult{
		Path:         PathAsync,
		TaskID:       taskID,
		Status:       model.TaskStatusStarted,
		Message:      "Your request is being processed. You'll receive updates in short.",
		WebsocketURL: websocketURL,
	}, nil
}

// processAsync runs on the worker pool, detached from the originating
// request. The terminal status is written to the store before any
// notification attempt, so the durable record reflects ground truth even
// when delivery fails.
func (d *dispatchUC) processAsync(ctx context.Context, taskID string, user adapter.Identity, prompt, websocketURL string) {
	log := d.log.With().Str("task_id", taskID).Logger()
	log.Info().Msg("background processing started")

	if _, err := d.tasks.Update(ctx, taskID, model.TaskStatusProcessing, "Agent is analyzing your request..."); err != nil {
		log.Error().Err(err).Msg("failed to record processing status")
	}

	reply, err := d.engine.Prompt(ctx, user, prompt)
	if err != nil {
		log.Error().Err(err).Msg("background processing failed")
		msg := fmt.Sprintf("Processing failed: %v", err)
		if _, uerr := d.tasks.Update(ctx, taskID, model.TaskStatusFailed, msg); uerr != nil {
			log.Error().Err(uerr).Msg("failed to record failure status")
		}
		d.dispatcher.Send(ctx, user.Name, msg, websocketURL)
		return
	}

	if _, err := d.tasks.Update(ctx, taskID, model.TaskStatusCompleted, reply); err != nil {
		log.Error().Err(err).Msg("failed to record completion status")
	}
	d.dispatcher.Send(ctx, user.Name, reply, websocketURL)
	log.Info().Msg("background processing completed")
}

func (d *dispatchUC) TaskStatus(ctx context.Context, user adapter.Identity, taskID string) (*model.TaskSession, error) {
	defer logging.TraceDuration(d.log, "RequestDispatcher.TaskStatus")()
	s, err := d.tasks.Read(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if s.UserID != user.ID {
		return nil, domain.ErrForbidden
	}
	return s, nil
}

func compositePrompt(user adapter.Identity, sourceIP, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User name: %s\n", user.Name)
	fmt.Fprintf(&b, "User IP: %s\n", sourceIP)
	fmt.Fprintf(&b, "User prompt: %s", text)
	return b.String()
}

func cachedResultsBlock(r *model.CachedJobResult) string {
	return fmt.Sprintf(`
CACHED JOB RESULTS AVAILABLE:
- Job: %s
- Status: %s
- Completed: %s
- Results: %s
`, r.JobName, r.Status, r.CompletionTime.Format("2006-01-02T15:04:05Z"), r.Results)
}
