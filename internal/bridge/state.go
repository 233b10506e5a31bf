package bridge

import (
	"context"
	"time"
)

// State is the lifecycle state of a Handler.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Event describes one invocation transition. Err is set only for failures.
type Event struct {
	ID       string
	Command  string
	Target   string
	State    State
	Err      error
	Duration time.Duration
}

// Record returns the journal row for a finished invocation.
func (e Event) Record() Record {
	rec := Record{
		ID:       e.ID,
		Command:  e.Command,
		Target:   e.Target,
		Outcome:  e.State.String(),
		Duration: e.Duration,
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}

// Record is a persisted invocation.
type Record struct {
	ID        string
	Command   string
	Target    string
	Outcome   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Journal persists finished invocations.
type Journal interface {
	RecordInvocation(ctx context.Context, rec Record) error
}
