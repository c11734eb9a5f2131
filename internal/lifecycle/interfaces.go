package lifecycle

import (
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/poller"
	"github.com/oltfleet/pollerd/internal/store"
)

// ExecutionStore is the subset of store.BoltStore the lifecycle manager
// needs to read attempt history, record startup-recovery transitions, and
// create retry executions.
type ExecutionStore interface {
	Get(id string) (domain.Execution, error)
	InsertExecution(job domain.Job, scheduledAt time.Time, attemptNumber int, parentExecutionID *string) (domain.Execution, error)
	Transition(id string, from, to domain.ExecutionState, fields store.TransitionFields) error
	ListNonTerminal() ([]domain.Execution, error)
}

// JobStore is the subset of store.BoltStore the lifecycle manager needs to
// re-read a job's current attributes before scheduling a retry.
type JobStore interface {
	GetJob(id string) (domain.Job, error)
}

// OLTStore is the subset of store.BoltStore the lifecycle manager uses to
// maintain the consecutive-failure counter. It never disables an OLT;
// only the counter is maintained.
type OLTStore interface {
	ResetFailureCount(oltID string) error
	IncrementFailureCount(oltID string) error
}

// Submitter is the pool's public contract, narrowed to what retries need.
type Submitter interface {
	Submit(node domain.CompositeNode) poller.SubmitResult
}

// ChainNotifier is the Chain Coordinator's inbound contract: the lifecycle
// manager calls it once a master execution reaches a terminal state that
// is not itself a retry-in-progress.
type ChainNotifier interface {
	OnMasterTerminal(node domain.CompositeNode, state domain.ExecutionState)
}
