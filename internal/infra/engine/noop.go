package engine

import (
	"context"
	"fmt"

	"dq-agent/internal/domain/ports/adapter"
)

var _ adapter.AgentEngine = (*NoopEngine)(nil)

// NoopEngine echoes prompts back for local development, where no
// reasoning engine is reachable.
type NoopEngine struct{}

func NewNoopEngine() *NoopEngine { return &NoopEngine{} }

func (e *NoopEngine) Prompt(ctx context.Context, user adapter.Identity, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("[noop-engine] reply for %s: received %d characters", user.Name, len(prompt)), nil
}
