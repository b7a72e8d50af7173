package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/adapter"
	"dq-agent/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Harvester summarizes a successfully finished job's output artifacts.
// Harvesting is best-effort: implementations return empty strings instead
// of errors.
type Harvester interface {
	Harvest(ctx context.Context, sessionID string) (preview, outputLocation string)
}

// Session identifies the job run being watched and the user to notify.
type Session struct {
	SessionID    string
	JobName      string
	RunID        string
	User         model.UserContext
	WebsocketURL string
}

// Runner drives a Machine against a real run-state reader on a timer.
// now and sleep are replaceable for tests.
type Runner struct {
	reader        adapter.RunStateReader
	harvester     Harvester
	interval      time.Duration
	progressEvery int
	maxWall       time.Duration
	log           *zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewRunner(reader adapter.RunStateReader, harvester Harvester, interval time.Duration, progressEvery int, maxWall time.Duration, logger *zerolog.Logger) *Runner {
	compLog := logger.With().Str("component", "JobPoller").Logger()
	return &Runner{
		reader:        reader,
		harvester:     harvester,
		interval:      interval,
		progressEvery: progressEvery,
		maxWall:       maxWall,
		log:           &compLog,
		now:           func() time.Time { return time.Now().UTC() },
		sleep:         sleepCtx,
	}
}

// Run polls until the run reaches a terminal state or the ceiling fires,
// invoking onProgress on every progress-emission tick (delivery failures
// there never stop the loop). It returns the final result event, with the
// harvested preview filled in for SUCCEEDED runs.
func (r *Runner) Run(ctx context.Context, sess Session, onProgress func(model.JobEvent)) model.JobEvent {
	log := r.log.With().Str("session_id", sess.SessionID).Str("job_name", sess.JobName).Str("run_id", sess.RunID).Logger()
	log.Info().Msg("starting job run watch")

	m := NewMachine(r.progressEvery, r.maxWall, r.now())

	var step Step
	for {
		state, err := r.reader.ReadRunState(ctx, sess.JobName, sess.RunID)
		metrics.IncPollCycle()
		if err != nil {
			// Transient read failure: skip this cycle, let the ceiling decide.
			log.Warn().Err(err).Msg("error reading job run state")
			step = m.ObserveError(r.now())
		} else {
			step = m.Observe(state, r.now())
			log.Info().Str("state", string(step.State)).Int("poll", step.PollCount).Dur("elapsed", step.Elapsed).Msg("job run state")
		}

		if step.Terminal {
			break
		}
		if step.EmitProgress && onProgress != nil {
			onProgress(r.progressEvent(sess, step))
		}

		r.sleep(ctx, r.interval)
		if ctx.Err() != nil {
			// Process shutdown. Report the run as timed out rather than
			// leaving the session dangling with no terminal event.
			log.Warn().Msg("polling cancelled")
			step = m.forceTimeout(r.now())
			break
		}
	}

	if step.ForcedBy != "" {
		log.Error().Dur("elapsed", step.Elapsed).Msg("max polling duration exceeded, forcing timeout")
	}
	log.Info().Str("state", string(step.State)).Msg("job run finished")
	metrics.IncJobFinished(string(step.State))

	result := model.JobEvent{
		Type:         model.EventTypeJobResult,
		EventSource:  "job_poller",
		SessionID:    sess.SessionID,
		JobName:      sess.JobName,
		RunID:        sess.RunID,
		Status:       step.State,
		UserContext:  sess.User,
		WebsocketURL: sess.WebsocketURL,
		Timestamp:    r.now().Format(time.RFC3339),
	}
	if step.State == model.RunStateSucceeded && r.harvester != nil {
		result.ResultPreview, result.OutputLocation = r.harvester.Harvest(ctx, sess.SessionID)
	}
	return result
}

func (r *Runner) progressEvent(sess Session, step Step) model.JobEvent {
	minutes := step.Elapsed.Minutes()
	return model.JobEvent{
		Type:            model.EventTypeJobProgress,
		EventSource:     "job_poller",
		SessionID:       sess.SessionID,
		JobName:         sess.JobName,
		RunID:           sess.RunID,
		Status:          step.State,
		ProgressMessage: fmt.Sprintf("Job is %s... (running for %.1f minutes)", strings.ToLower(string(step.State)), minutes),
		ElapsedMinutes:  minutes,
		UserContext:     sess.User,
		WebsocketURL:    sess.WebsocketURL,
		Timestamp:       r.now().Format(time.RFC3339),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
