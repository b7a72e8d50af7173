package usecase

import (
	"context"
	"sync"

	"dq-agent/internal/domain"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/domain/ports/adapter"
)

// memTaskRepo is an in-memory stand-in for the S3-backed task store.
type memTaskRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.TaskSession
	createErr error
	updateErr error
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{sessions: make(map[string]*model.TaskSession)}
}

func (m *memTaskRepo) Create(ctx context.Context, s *model.TaskSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TaskID] = &cp
	return nil
}

func (m *memTaskRepo) Update(ctx context.Context, taskID string, status model.TaskStatus, progress string) (*model.TaskSession, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.Status = status
	s.Progress = progress
	cp := *s
	return &cp, nil
}

func (m *memTaskRepo) Read(ctx context.Context, taskID string) (*model.TaskSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memTaskRepo) get(taskID string) *model.TaskSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[taskID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// stubEngine returns a canned reply and records the prompts it saw.
type stubEngine struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (e *stubEngine) Prompt(ctx context.Context, user adapter.Identity, prompt string) (string, error) {
	e.mu.Lock()
	e.prompts = append(e.prompts, prompt)
	e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	return e.reply, nil
}

func (e *stubEngine) lastPrompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		return ""
	}
	return e.prompts[len(e.prompts)-1]
}

// recordTransport acknowledges every delivery and records it; delivered is
// signalled once per message so tests can join on background sends.
type recordTransport struct {
	mu        sync.Mutex
	err       error
	messages  []string
	usernames []string
	delivered chan struct{}
}

func newRecordTransport() *recordTransport {
	return &recordTransport{delivered: make(chan struct{}, 16)}
}

func (tr *recordTransport) Deliver(ctx context.Context, username, message, endpoint string) error {
	tr.mu.Lock()
	tr.messages = append(tr.messages, message)
	tr.usernames = append(tr.usernames, username)
	err := tr.err
	tr.mu.Unlock()
	tr.delivered <- struct{}{}
	return err
}

func (tr *recordTransport) lastMessage() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.messages) == 0 {
		return ""
	}
	return tr.messages[len(tr.messages)-1]
}
