package workflow

import (
	"time"

	"guernika/internal/job"
)

// State is the orchestrator's position in the submission lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateProbing   State = "probing"
	StateBlocked   State = "blocked"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// OutcomeKind classifies how a submission ended.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeBlocked   OutcomeKind = "blocked"
	OutcomeInvalid   OutcomeKind = "invalid"
)

// Outcome reports the result of one submission. Err carries the classified
// error for every kind except OutcomeSucceeded. Warning is set when the run
// succeeded but the preferences could not be saved.
type Outcome struct {
	Kind        OutcomeKind
	Message     string
	Err         error
	Warning     error
	JobID       string
	Descriptor  job.Descriptor
	Elapsed     time.Duration
	OutputBytes int64
}

// OK reports whether the conversion succeeded.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSucceeded
}

// BusyObserver receives the single busy signal bracketing a converter run.
type BusyObserver interface {
	BusyChanged(busy bool)
}

// BusyFunc adapts a function to BusyObserver.
type BusyFunc func(busy bool)

// BusyChanged calls f(busy).
func (f BusyFunc) BusyChanged(busy bool) {
	f(busy)
}
