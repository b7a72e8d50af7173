package adapter

import "context"

// Identity is the authenticated user on whose behalf a prompt runs.
type Identity struct {
	ID   string
	Name string
}

// AgentEngine is the reasoning/response-generation engine. It is a black box
// from this service's point of view: prompt in, text out.
type AgentEngine interface {
	Prompt(ctx context.Context, user Identity, prompt string) (string, error)
}
