package model

import "time"

type TaskStatus string

const (
	TaskStatusStarted    TaskStatus = "STARTED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Terminal reports whether no further status transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskSession is the durable record of one asynchronous user request,
// stored as a whole-document JSON object keyed by task id. Updates are
// idempotent overwrites of the full record (last write wins).
type TaskSession struct {
	TaskID    string     `json:"task_id"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Prompt    string     `json:"prompt"`
	Status    TaskStatus `json:"status"`
	Progress  string     `json:"progress"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

func NewTaskSession(taskID, userID, username, prompt string) *TaskSession {
	return &TaskSession{
		TaskID:    taskID,
		UserID:    userID,
		Username:  username,
		Prompt:    prompt,
		Status:    TaskStatusStarted,
		Progress:  "Initializing agent reasoning...",
		CreatedAt: time.Now().UTC(),
	}
}
