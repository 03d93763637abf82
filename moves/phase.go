package moves

import (
	"time"

	"thirdangle/domain"
	"thirdangle/gateway"
)

// Phase is the state of a single move.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseDropped
	PhaseCommitting
	PhaseSettled
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseDropped:
		return "dropped"
	case PhaseCommitting:
		return "committing"
	case PhaseSettled:
		return "settled"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Move describes one gesture from pickup to its terminal phase.
type Move struct {
	TaskID    string
	From      domain.Status
	To        domain.Status
	Phase     Phase
	StartedAt time.Time
}

// Outcome is how a drop ended.
type Outcome string

const (
	// OutcomeNoop covers drops with nothing held and drops onto the task's own column.
	OutcomeNoop       Outcome = "noop"
	OutcomeRejected   Outcome = "rejected"
	OutcomeSettled    Outcome = "settled"
	OutcomeRolledBack Outcome = "rolled_back"
)

// Result reports the end of a drop. RefreshErr is set when the write
// succeeded but the follow-up board refresh did not.
type Result struct {
	Move       Move
	Outcome    Outcome
	Reason     gateway.Reason
	Err        error
	RefreshErr error
}
