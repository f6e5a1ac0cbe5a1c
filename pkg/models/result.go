package models

import "time"

// ResultStatus is the per-row classification of a run
type ResultStatus string

const (
	StatusSent    ResultStatus = "SENT"
	StatusFailed  ResultStatus = "FAILED"
	StatusSkipped ResultStatus = "SKIPPED"
)

// Outcome is what the session reports for a single send.
// Err wraps ErrSessionLost when the browser itself went away.
type Outcome struct {
	Status ResultStatus
	Detail string
	Err    error
}

// Sent builds a successful outcome
func Sent() Outcome {
	return Outcome{Status: StatusSent}
}

// Failed builds a per-contact failure
func Failed(detail string, err error) Outcome {
	return Outcome{Status: StatusFailed, Detail: detail, Err: err}
}

// RunResult is the recorded outcome of one row
type RunResult struct {
	Row    Row          `json:"row"`
	Status ResultStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}

// RunState is the lifecycle phase of a run
type RunState string

const (
	RunOpening   RunState = "OPENING"
	RunSending   RunState = "SENDING"
	RunCompleted RunState = "COMPLETED"
	RunStopped   RunState = "STOPPED"
	RunAborted   RunState = "ABORTED" // session lost mid-run
	RunFailed    RunState = "FAILED"  // session never opened
)

// Finished reports whether the run reached a terminal state
func (s RunState) Finished() bool {
	switch s {
	case RunCompleted, RunStopped, RunAborted, RunFailed:
		return true
	}
	return false
}

// RunSummary is the operator-facing view of a run
type RunSummary struct {
	RunID      string      `json:"runId"`
	Source     string      `json:"source"`
	State      RunState    `json:"state"`
	Delay      float64     `json:"delaySeconds"`
	Total      int         `json:"total"`
	Sent       int         `json:"sent"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Current    *Row        `json:"current,omitempty"`
	Results    []RunResult `json:"results"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}

// Count tallies a result into the summary counters
func (s *RunSummary) Count(status ResultStatus) {
	switch status {
	case StatusSent:
		s.Sent++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
}
