package notify

import (
	"context"
	"errors"
	"time"

	"dq-agent/internal/domain"
	"dq-agent/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Transport delivers one message to one user's push channel. A nil return
// is the positive acknowledgement the dispatcher requires; any error is a
// failed attempt. domain.ErrChannelUnavailable means no channel is known
// for the user, which is not worth retrying.
type Transport interface {
	Deliver(ctx context.Context, username, message, endpoint string) error
}

// Dispatcher sends push notifications with bounded retries and exponential
// backoff. A false return means the user was not notified; the business
// state is already durable and callers must not roll anything back.
type Dispatcher struct {
	transport   Transport
	maxRetries  int
	backoffBase time.Duration
	log         *zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration)
}

func NewDispatcher(transport Transport, maxRetries int, backoffBase time.Duration, logger *zerolog.Logger) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	compLog := logger.With().Str("component", "NotificationDispatcher").Logger()
	return &Dispatcher{
		transport:   transport,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		log:         &compLog,
		sleep:       sleepCtx,
	}
}

// Send attempts delivery up to maxRetries times, doubling the delay after
// each failed attempt. channelHint optionally overrides the transport's
// default endpoint (the watcher passes the websocket URL through with the
// event).
func (d *Dispatcher) Send(ctx context.Context, username, message, channelHint string) bool {
	delay := d.backoffBase

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		metrics.IncNotifyAttempt()

		err := d.transport.Deliver(ctx, username, message, channelHint)
		if err == nil {
			d.log.Info().Str("username", username).Int("attempt", attempt).Msg("notification delivered")
			metrics.IncNotifySend("delivered")
			return true
		}
		if errors.Is(err, domain.ErrChannelUnavailable) {
			d.log.Info().Str("username", username).Msg("no push channel registered, skipping notification")
			metrics.IncNotifySend("no_channel")
			return false
		}

		d.log.Warn().Err(err).Str("username", username).Int("attempt", attempt).Msg("notification attempt failed")
		if attempt < d.maxRetries {
			d.sleep(ctx, delay)
			delay *= 2
		}
	}

	d.log.Error().Str("username", username).Int("attempts", d.maxRetries).Msg("all notification attempts failed")
	metrics.IncNotifySend("exhausted")
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
