package domain

import "time"

// OperationType identifies the kind of SNMP query a job performs.
type OperationType string

const (
	OperationDiscovery OperationType = "discovery"
	OperationGet       OperationType = "get"
	OperationWalk      OperationType = "walk"
	OperationTable     OperationType = "table"
	OperationBulk      OperationType = "bulk"
)

// IsMasterEligible reports whether this operation type may head a chain.
// Both discovery and get jobs may be masters; walk/table/bulk are
// chain-only operation types in practice.
func (t OperationType) IsMasterEligible() bool {
	return t == OperationDiscovery || t == OperationGet
}

// Job is a scheduled work template bound to one OLT and one operation type.
type Job struct {
	ID                string
	OLTID             string
	Enabled           bool
	OperationType     OperationType
	IntervalSeconds int
	NextRunAt       time.Time
	// MaxRetries and RetryDelaySeconds override the per-operation-type
	// retry policy when positive; zero means that policy applies.
	MaxRetries        int
	RetryDelaySeconds int
	OID               string
	QueueHint         string

	// ParentJobID is set for chain jobs: the master whose success (or,
	// per RunChainOnFailure, failure) triggers them.
	ParentJobID *string
	// ChainPosition orders chain jobs under the same parent.
	ChainPosition int
	// ParallelOK, if true, allows this chain node to run concurrently
	// with its predecessor instead of waiting for it to terminate.
	ParallelOK bool
	// RunChainOnFailure overrides the default "skip chain on master
	// failure" policy for this specific chain job.
	RunChainOnFailure bool
}

// Quota returns the maximum number of terminal executions allowed for this
// job in any rolling 3600s window: floor(3600/interval), minimum 1.
func (j Job) Quota() int {
	if j.IntervalSeconds <= 0 {
		return 1
	}
	q := 3600 / j.IntervalSeconds
	if q < 1 {
		q = 1
	}
	return q
}

// NewJob constructs an enabled Job. MaxRetries and RetryDelaySeconds are
// left zero, meaning the per-operation-type retry policy from the
// configuration store applies; set them explicitly to override it for a
// single job.
func NewJob(id, oltID string, opType OperationType, intervalSeconds int, oid, queueHint string) Job {
	return Job{
		ID:              id,
		OLTID:           oltID,
		Enabled:         true,
		OperationType:   opType,
		IntervalSeconds: intervalSeconds,
		OID:             oid,
		QueueHint:       queueHint,
	}
}
