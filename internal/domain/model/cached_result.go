package model

import "time"

// CachedJobResult is the in-memory record of the most recent completed job
// for a user. It exists so a follow-up "is it done" query can be answered
// without re-querying the job system, and is rebuildable: losing it only
// costs a cache miss.
type CachedJobResult struct {
	JobName        string    `json:"job_name"`
	RunID          string    `json:"run_id"`
	SessionID      string    `json:"session_id"`
	Status         RunState  `json:"status"`
	CompletionTime time.Time `json:"completion_time"`
	Results        string    `json:"results"`
}
