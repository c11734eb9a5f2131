// Package snmpworker executes SNMP queries against OLT endpoints. The
// core (scheduler, poller pool, lifecycle manager) depends only on the
// Worker interface; SNMP transport details never leak past it.
package snmpworker

import (
	"context"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
)

// Result is the outcome of one SNMP query.
type Result struct {
	Value        any
	ErrorKind    domain.ErrorKind
	NonRetriable bool
	Detail       string
}

// Worker is the narrow contract the poller pool invokes. Implementations
// must respect ctx cancellation promptly; the pool enforces its hard
// wall-clock ceiling by cancelling ctx, not by relying on the worker's
// own timeout alone.
type Worker interface {
	Execute(ctx context.Context, endpoint domain.SNMPEndpoint, opType domain.OperationType, oid string, timeout time.Duration) (Result, error)
}
