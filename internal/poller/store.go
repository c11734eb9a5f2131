package poller

import (
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/store"
)

// ExecutionStore is the subset of store.BoltStore a slot needs to drive the
// execution state machine.
type ExecutionStore interface {
	InsertExecution(job domain.Job, scheduledAt time.Time, attemptNumber int, parentExecutionID *string) (domain.Execution, error)
	Transition(id string, from, to domain.ExecutionState, fields store.TransitionFields) error
	Get(id string) (domain.Execution, error)
}

// EnabledChecker is the subset of job/OLT lookups a slot needs to re-check
// enabled state right before starting: a job or OLT disabled between
// selection and enqueue must never reach the RUNNING transition.
type EnabledChecker interface {
	GetJob(id string) (domain.Job, error)
	GetOLT(id string) (domain.OLT, error)
}
