package model

type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateSucceeded RunState = "SUCCEEDED"
	RunStateFailed    RunState = "FAILED"
	RunStateStopped   RunState = "STOPPED"
	RunStateTimeout   RunState = "TIMEOUT"
)

// Terminal reports whether the polling loop must exit on observing this state.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed, RunStateStopped, RunStateTimeout:
		return true
	}
	return false
}
