package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/store"
)

// runNode drives one CompositeNode's master execution through the state
// machine on the given slot, then releases the slot back to the pool. It
// never returns an error to the caller; all outcomes are recorded on the
// execution row and reported via the completion callback.
func (p *Pool) runNode(idx int, node domain.CompositeNode) {
	s := p.slots[idx]
	s.mu.Lock()
	s.currentExecutionID = node.MasterExecutionID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.currentExecutionID = ""
		s.mu.Unlock()
		select {
		case p.slotChan <- idx:
		default:
			// slot channel is sized to PoolSize; this can only happen if
			// the same index is returned twice, which would be a bug.
			p.log.Errorf("pool: slot %d channel full on return, dropping index", idx)
		}
	}()

	terminal, execErr := p.execute(idx, node)
	if execErr != nil {
		p.log.Warnf("pool: execution %s for job %s did not reach a terminal state: %v",
			node.MasterExecutionID, node.Master.ID, execErr)
		return
	}

	if p.onComplete != nil {
		p.onComplete(node.MasterExecutionID, terminal, node)
	}
}

// execute runs the enabled recheck, lock acquisition, worker invocation and
// state transitions for a single master execution. It returns the terminal
// state actually written to the store.
func (p *Pool) execute(idx int, node domain.CompositeNode) (domain.ExecutionState, error) {
	job := node.Master
	var endpoint domain.SNMPEndpoint

	// Re-check enabled right before starting: a job or its OLT may have
	// been disabled between selection and the slot becoming free.
	if p.checker != nil {
		freshJob, err := p.checker.GetJob(job.ID)
		if err == nil && !freshJob.Enabled {
			return p.finishDisabled(node)
		}
		olt, oerr := p.checker.GetOLT(job.OLTID)
		if oerr == nil {
			if !olt.Enabled {
				return p.finishDisabled(node)
			}
			endpoint = olt.Endpoint
		}
	}

	lockTimeout := clampTimeout(p.lockTimeout(), 60*time.Second)
	if !p.locks.TryAcquire(job.OLTID, lockTimeout) {
		// Could not get exclusive access to the OLT in time; hand the
		// node back to the FIFO rather than failing the execution, since
		// the contention is transient (another job on the same OLT).
		p.requeue(node)
		return p.finishRequeued(node)
	}
	defer p.locks.Release(job.OLTID)

	if l := p.limiterFor(job.OLTID); l != nil {
		_ = l.Wait(context.Background())
	}

	startedAt := p.clock.Now()
	workerID := fmt.Sprintf("slot-%d", idx)
	if err := p.execStore.Transition(node.MasterExecutionID, domain.StatePending, domain.StateRunning, store.TransitionFields{
		StartedAt: &startedAt,
		WorkerID:  workerID,
	}); err != nil {
		return domain.StateFailed, err
	}

	// The context carries only the hard wall-clock ceiling. The worker
	// enforces the per-operation timeout itself and reports it as a
	// retriable timeout result; hitting the ceiling is the INTERRUPTED
	// path below.
	timeout := p.operationTimeout(job.OperationType)
	ctx, cancel := context.WithTimeout(context.Background(), p.hardCeiling())
	defer cancel()

	result, err := p.worker.Execute(ctx, endpoint, job.OperationType, job.OID, timeout)

	finishedAt := p.clock.Now()
	durationMS := finishedAt.Sub(startedAt).Milliseconds()

	var to domain.ExecutionState
	fields := store.TransitionFields{
		FinishedAt: &finishedAt,
		DurationMS: &durationMS,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		to = domain.StateInterrupted
		fields.ErrorKind = domain.ErrorTimeout
		fields.ErrorDetail = "hard wall-clock ceiling exceeded"
	case err == nil && result.ErrorKind == "":
		to = domain.StateSuccess
	default:
		to = domain.StateFailed
		if err != nil && result.ErrorKind == "" {
			fields.ErrorKind = domain.ErrorInternal
			fields.ErrorDetail = err.Error()
		} else {
			fields.ErrorKind = result.ErrorKind
			fields.ErrorDetail = result.Detail
			fields.NonRetriable = result.NonRetriable
		}
	}

	if terr := p.execStore.Transition(node.MasterExecutionID, domain.StateRunning, to, fields); terr != nil {
		p.log.Errorf("pool: failed to record terminal state for execution %s: %v", node.MasterExecutionID, terr)
		return to, terr
	}
	return to, nil
}

func (p *Pool) finishDisabled(node domain.CompositeNode) (domain.ExecutionState, error) {
	now := p.clock.Now()
	fields := store.TransitionFields{
		StartedAt:  &now,
		FinishedAt: &now,
		ErrorKind:  domain.ErrorDisabled,
	}
	var durationMS int64
	fields.DurationMS = &durationMS
	if err := p.execStore.Transition(node.MasterExecutionID, domain.StatePending, domain.StateInterrupted, fields); err != nil {
		return domain.StateInterrupted, err
	}
	return domain.StateInterrupted, nil
}

// finishRequeued is a no-op terminal report: the execution row stays
// PENDING because the node was handed back to the FIFO rather than failed.
// The caller's deferred slot-return still runs; only the completion
// callback is skipped so the lifecycle manager doesn't see a false
// terminal signal for a node that will run again.
func (p *Pool) finishRequeued(node domain.CompositeNode) (domain.ExecutionState, error) {
	return domain.StatePending, fmt.Errorf("requeued after lock timeout for OLT %s", node.Master.OLTID)
}

func (p *Pool) lockTimeout() time.Duration {
	if p.cfg == nil {
		return 60 * time.Second
	}
	return p.cfg.PerOLTLockTimeout
}

func (p *Pool) operationTimeout(opType domain.OperationType) time.Duration {
	if p.cfg == nil {
		return 15 * time.Second
	}
	oc := p.cfg.OperationConfigFor(opType)
	timeout := oc.Timeout
	if ceiling := p.cfg.HardWallClockCeiling; ceiling > 0 && timeout > ceiling {
		timeout = ceiling
	}
	return clampTimeout(timeout, 15*time.Second)
}

func (p *Pool) hardCeiling() time.Duration {
	if p.cfg == nil || p.cfg.HardWallClockCeiling <= 0 {
		return 180 * time.Second
	}
	return p.cfg.HardWallClockCeiling
}
