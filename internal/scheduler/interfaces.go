package scheduler

import (
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/poller"
)

// JobStore is the subset of store.BoltStore the scheduler needs to read and
// rewrite job schedules.
type JobStore interface {
	ListEnabledDue(now time.Time) ([]domain.Job, error)
	ListAll() ([]domain.Job, error)
	UpdateNextRunAt(jobID string, ts time.Time) error
	GetChain(parentJobID string) ([]domain.Job, error)
}

// OLTStore is the subset of store.BoltStore the scheduler needs to confirm
// an OLT is still enabled before enqueuing work against it.
type OLTStore interface {
	GetOLT(id string) (domain.OLT, error)
}

// ExecutionStore is the subset of store.BoltStore the scheduler needs for
// the quota and running-of-same-type gates, and to create (or, on a
// rejected submission, roll back) the PENDING row that accompanies every
// CompositeNode it submits.
type ExecutionStore interface {
	CountTerminalSince(jobID string, since time.Time) (int, error)
	ExistsNonTerminal(oltID string, opType domain.OperationType) (bool, error)
	InsertExecution(job domain.Job, scheduledAt time.Time, attemptNumber int, parentExecutionID *string) (domain.Execution, error)
	DeleteExecution(id string) error
}

// Submitter is the pool's public contract, narrowed to what the scheduler
// invokes.
type Submitter interface {
	Submit(node domain.CompositeNode) poller.SubmitResult
}
