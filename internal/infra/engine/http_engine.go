package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"dq-agent/internal/config"
	"dq-agent/internal/domain/ports/adapter"
)

var _ adapter.AgentEngine = (*HTTPEngine)(nil)

// HTTPEngine forwards prompts to the external reasoning engine over HTTP.
type HTTPEngine struct {
	url    string
	client *http.Client
}

func NewHTTPEngine(cfg *config.EngineConfig) *HTTPEngine {
	return &HTTPEngine{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout.Std()},
	}
}

type engineRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Prompt   string `json:"prompt"`
}

type engineResponse struct {
	Response string `json:"response"`
}

func (e *HTTPEngine) Prompt(ctx context.Context, user adapter.Identity, prompt string) (string, error) {
	body, err := json.Marshal(engineRequest{UserID: user.ID, Username: user.Name, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("engine: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine: call %s: %w", e.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("engine: unexpected status %d: %s", resp.StatusCode, string(b))
	}
	var out engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("engine: decode response: %w", err)
	}
	return out.Response, nil
}
