// File: internal/usecase/result_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dq-agent/internal/cache"
	"dq-agent/internal/domain"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/adapter"
	"dq-agent/internal/domain/ports/repository"
	"dq-agent/internal/infra/logging"
	"dq-agent/internal/notify"
)

// Compile-time check
var _ ResultUseCase = (*resultUC)(nil)

// ResultUseCase consumes job events arriving from the watcher. Events are
// at-least-once: every handler is an idempotent overwrite and a duplicate
// event just repeats the same writes.
type ResultUseCase interface {
	// HandleResult records a terminal job outcome: task store first, then
	// result cache, then push notification. Returns the user-facing reply.
	HandleResult(ctx context.Context, ev model.JobEvent) (string, error)

	// HandleProgress forwards a progress tick to the user, best-effort.
	HandleProgress(ctx context.Context, ev model.JobEvent)
}

type resultUC struct {
	tasks      repository.TaskSessionRepository
	engine     adapter.AgentEngine
	results    *cache.ResultCache
	dispatcher *notify.Dispatcher
	log        *zerolog.Logger
	now        func() time.Time
}

func NewResultUseCase(
	tasks repository.TaskSessionRepository,
	engine adapter.AgentEngine,
	results *cache.ResultCache,
	dispatcher *notify.Dispatcher,
	logger *zerolog.Logger,
) *resultUC {
	compLog := logger.With().Str("component", "ResultHandler").Logger()
	return &resultUC{
		tasks:      tasks,
		engine:     engine,
		results:    results,
		dispatcher: dispatcher,
		log:        &compLog,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *resultUC) HandleResult(ctx context.Context, ev model.JobEvent) (string, error) {
	defer logging.TraceDuration(r.log, "ResultHandler.HandleResult")()

	user := adapter.Identity{ID: ev.UserContext.UserID, Name: ev.UserContext.Username}
	if user.ID == "" {
		user.ID = ev.SessionID
	}
	if user.Name == "" {
		user.Name = "unknown-user"
	}
	log := logging.With(ctx, r.log).With().Str("status", string(ev.Status)).Logger()
	log.Info().Msg("handling job result event")

	reply := r.composeReply(ctx, user, ev)

	// Durable record first: the store must reflect the terminal outcome
	// before any delivery attempt can fail.
	status := model.TaskStatusFailed
	if ev.Status == model.RunStateSucceeded {
		status = model.TaskStatusCompleted
	}
	if _, err := r.tasks.Update(ctx, ev.SessionID, status, reply); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// An unknown session id can happen under at-least-once delivery
			// from a watcher restarted mid-run; the result is still worth
			// caching and pushing.
			log.Warn().Msg("no task session for job result event")
		} else {
			log.Error().Err(err).Msg("failed to record terminal task status")
			return "", err
		}
	}

	r.results.Put(user.Name, &model.CachedJobResult{
		JobName:        ev.JobName,
		RunID:          ev.RunID,
		SessionID:      ev.SessionID,
		Status:         ev.Status,
		CompletionTime: r.now(),
		Results:        reply,
	})

	if !r.dispatcher.Send(ctx, user.Name, reply, ev.WebsocketURL) {
		log.Warn().Str("username", user.Name).Msg("user not notified of job result")
	}
	return reply, nil
}

func (r *resultUC) HandleProgress(ctx context.Context, ev model.JobEvent) {
	username := ev.UserContext.Username
	if username == "" {
		username = "unknown-user"
	}
	msg := ev.ProgressMessage
	if msg == "" {
		msg = "Job is running..."
	}
	text := fmt.Sprintf("Job progress update: %s\nYour job is still running. You'll receive the full results when it completes.", msg)
	if !r.dispatcher.Send(ctx, username, text, ev.WebsocketURL) {
		logging.With(ctx, r.log).Debug().Str("username", username).Msg("progress notification not delivered")
	}
}

// composeReply asks the reasoning engine to phrase the outcome for the
// user, falling back to a plain rendering of the event when the engine is
// unavailable. A missing preview never blocks the reply.
func (r *resultUC) composeReply(ctx context.Context, user adapter.Identity, ev model.JobEvent) string {
	prompt := promptFromJobEvent(ev)
	reply, err := r.engine.Prompt(ctx, user, prompt)
	if err != nil {
		r.log.Warn().Err(err).Msg("engine unavailable for result event, using raw summary")
		return rawReply(ev)
	}
	return reply
}

func promptFromJobEvent(ev model.JobEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A background analytical job has finished.\n")
	fmt.Fprintf(&b, "Job: %s (run %s)\n", ev.JobName, ev.RunID)
	fmt.Fprintf(&b, "Final status: %s\n", ev.Status)
	if ev.OutputLocation != "" {
		fmt.Fprintf(&b, "Output location: %s\n", ev.OutputLocation)
	}
	if ev.ResultPreview != "" {
		fmt.Fprintf(&b, "Result preview:\n%s\n", ev.ResultPreview)
	}
	b.WriteString("Summarize this outcome for the user who started the job.")
	return b.String()
}

func rawReply(ev model.JobEvent) string {
	if ev.Status == model.RunStateSucceeded {
		if ev.ResultPreview != "" {
			return fmt.Sprintf("Your job %q completed successfully.\n\n%s", ev.JobName, ev.ResultPreview)
		}
		return fmt.Sprintf("Your job %q completed successfully. Results are at %s.", ev.JobName, ev.OutputLocation)
	}
	return fmt.Sprintf("Your job %q finished with status %s.", ev.JobName, ev.Status)
}
