package chain

import (
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/poller"
)

// ExecutionStore is the subset of store.BoltStore the coordinator needs to
// create chain execution rows, check for in-flight collisions, and trace a
// just-completed chain node back to the master execution that started its
// chain.
type ExecutionStore interface {
	InsertExecution(job domain.Job, scheduledAt time.Time, attemptNumber int, parentExecutionID *string) (domain.Execution, error)
	ExistsNonTerminal(oltID string, opType domain.OperationType) (bool, error)
	Get(id string) (domain.Execution, error)
}

// Submitter is the pool's public contract, narrowed to what the chain
// coordinator invokes.
type Submitter interface {
	Submit(node domain.CompositeNode) poller.SubmitResult
}
