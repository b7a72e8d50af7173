// Package poller watches one external job run until it reaches a terminal
// state. The state-machine logic is separated from the timing harness so it
// can be driven with a scripted state sequence and a mocked clock.
package poller

import (
	"time"

	"dq-agent/internal/domain/model"
)

// Step is the outcome of feeding one observation to the machine.
type Step struct {
	State        model.RunState
	PollCount    int
	Elapsed      time.Duration
	EmitProgress bool // this cycle should emit a progress event
	Terminal     bool // the polling loop must exit now
	ForcedBy     string
}

const forcedByCeiling = "wall_clock_ceiling"

// Machine tracks a single polling session. It starts in RUNNING and is done
// after the first terminal step; a done machine never re-enters the loop.
type Machine struct {
	progressEvery int
	maxWall       time.Duration
	started       time.Time

	state     model.RunState
	pollCount int
	done      bool
}

func NewMachine(progressEvery int, maxWall time.Duration, started time.Time) *Machine {
	if progressEvery <= 0 {
		progressEvery = 3
	}
	return &Machine{
		progressEvery: progressEvery,
		maxWall:       maxWall,
		started:       started,
		state:         model.RunStateRunning,
	}
}

func (m *Machine) State() model.RunState { return m.state }
func (m *Machine) PollCount() int        { return m.pollCount }
func (m *Machine) Done() bool            { return m.done }

// Observe feeds one successfully read external state into the machine.
func (m *Machine) Observe(state model.RunState, now time.Time) Step {
	if m.done {
		return m.terminalStep(now)
	}

	m.pollCount++
	m.state = state

	step := Step{
		State:     m.state,
		PollCount: m.pollCount,
		Elapsed:   now.Sub(m.started),
	}

	if state.Terminal() {
		m.done = true
		step.Terminal = true
		return step
	}

	step.EmitProgress = m.pollCount%m.progressEvery == 0
	return m.applyCeiling(step, now)
}

// ObserveError handles a failed run-state read: the counters and state are
// untouched, but the wall-clock ceiling still applies, so a permanently
// unreachable job system cannot pin the poller forever.
func (m *Machine) ObserveError(now time.Time) Step {
	if m.done {
		return m.terminalStep(now)
	}
	step := Step{
		State:     m.state,
		PollCount: m.pollCount,
		Elapsed:   now.Sub(m.started),
	}
	return m.applyCeiling(step, now)
}

func (m *Machine) applyCeiling(step Step, now time.Time) Step {
	if m.maxWall > 0 && now.Sub(m.started) > m.maxWall {
		m.state = model.RunStateTimeout
		m.done = true
		step.State = m.state
		step.Terminal = true
		step.EmitProgress = false
		step.ForcedBy = forcedByCeiling
	}
	return step
}

// forceTimeout terminates the session immediately, used when the hosting
// process is shutting down.
func (m *Machine) forceTimeout(now time.Time) Step {
	m.state = model.RunStateTimeout
	m.done = true
	return Step{
		State:     m.state,
		PollCount: m.pollCount,
		Elapsed:   now.Sub(m.started),
		Terminal:  true,
		ForcedBy:  "cancellation",
	}
}

func (m *Machine) terminalStep(now time.Time) Step {
	return Step{
		State:     m.state,
		PollCount: m.pollCount,
		Elapsed:   now.Sub(m.started),
		Terminal:  true,
	}
}
