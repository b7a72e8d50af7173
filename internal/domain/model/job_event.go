package model

// Event types accepted on the system ingress routes.
const (
	EventTypeJobResult   = "glue_job_result"
	EventTypeJobProgress = "glue_job_progress"
)

// UserContext carries the identity of the user that started a job through
// every hop of the watcher -> service -> push channel chain.
type UserContext struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// JobEvent is the wire format shared by progress and result events.
// The poller emits them, the agent service consumes them. Delivery is
// at-least-once; consumers treat every field write as an idempotent
// overwrite.
type JobEvent struct {
	Type            string      `json:"type"`
	EventSource     string      `json:"event_source,omitempty"`
	SessionID       string      `json:"session_id"`
	JobName         string      `json:"job_name"`
	RunID           string      `json:"run_id"`
	Status          RunState    `json:"status"`
	ProgressMessage string      `json:"progress_message,omitempty"`
	ElapsedMinutes  float64     `json:"elapsed_minutes,omitempty"`
	OutputLocation  string      `json:"output_location,omitempty"`
	ResultPreview   string      `json:"result_preview,omitempty"`
	UserContext     UserContext `json:"user_context"`
	WebsocketURL    string      `json:"websocket_url,omitempty"`
	Timestamp       string      `json:"timestamp"`
}
