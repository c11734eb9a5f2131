// Package lifecycle implements the execution lifecycle manager:
// state-transition reactions to the pool's completion callback, retry
// scheduling, OLT failure-counter maintenance, and startup recovery. It
// is purely reactive: it owns no ticking goroutine of its own beyond
// the retry delay queue's timers.
package lifecycle

import (
	"time"

	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/logging"
	"github.com/oltfleet/pollerd/internal/poller"
	"github.com/oltfleet/pollerd/internal/store"
)

// poolRetryDelay is how long a retry submission waits before trying again
// after the pool rejected it with a full FIFO. A variable so tests can
// shorten it.
var poolRetryDelay = 15 * time.Second

// Manager reacts to pool completion callbacks. It holds no global state;
// every dependency is injected.
type Manager struct {
	execs ExecutionStore
	jobs  JobStore
	olts  OLTStore
	pool  Submitter
	chain ChainNotifier
	cfg   *clockcfg.ConfigStore
	clock clockcfg.Clock
	log   logging.Logger

	retries *delayQueue
}

// Config bundles the Manager's dependencies.
type Config struct {
	Executions  ExecutionStore
	Jobs        JobStore
	OLTs        OLTStore
	Pool        Submitter
	Chain       ChainNotifier
	ConfigStore *clockcfg.ConfigStore
	Clock       clockcfg.Clock
	Logger      logging.Logger
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clockcfg.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Manager{
		execs:   cfg.Executions,
		jobs:    cfg.Jobs,
		olts:    cfg.OLTs,
		pool:    cfg.Pool,
		chain:   cfg.Chain,
		cfg:     cfg.ConfigStore,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		retries: newDelayQueue(),
	}
}

// Stop cancels any pending retry timers. In-flight executions are left to
// the pool's own shutdown grace window.
func (m *Manager) Stop() {
	m.retries.stop()
}

// SetPool wires the pool after construction. The composition root builds
// the Manager before the Pool exists (the Pool's completion callback
// points back at the Manager), so this breaks the cycle without resorting
// to a package-level singleton.
func (m *Manager) SetPool(pool Submitter) {
	m.pool = pool
}

// SetChain wires the chain coordinator after construction, for the same
// reason as SetPool.
func (m *Manager) SetChain(chain ChainNotifier) {
	m.chain = chain
}

// OnCompletion is the pool's completion callback. It must be fast and
// non-blocking; every branch here is either a single store write or an
// AfterFunc registration, never a blocking SNMP call.
func (m *Manager) OnCompletion(executionID string, state domain.ExecutionState, node domain.CompositeNode) {
	job := node.Master

	switch state {
	case domain.StateSuccess:
		if err := m.olts.ResetFailureCount(job.OLTID); err != nil {
			m.log.Errorf("lifecycle: reset failure count for OLT %s: %v", job.OLTID, err)
		}
		if m.chain != nil {
			m.chain.OnMasterTerminal(node, state)
		}

	case domain.StateFailed:
		m.onFailed(executionID, node)

	case domain.StateInterrupted:
		// No retry, no counter increment; next_run_at is left exactly as
		// the scheduler set it. The chain coordinator is still notified so
		// a chain stalled behind an interrupted node isn't left hanging
		// forever; it applies the same "no designated fallback" default as
		// a non-retriable failure.
		if m.chain != nil {
			m.chain.OnMasterTerminal(node, state)
		}
	}
}

func (m *Manager) onFailed(executionID string, node domain.CompositeNode) {
	job := node.Master
	exec, err := m.execs.Get(executionID)
	if err != nil {
		m.log.Errorf("lifecycle: load execution %s: %v", executionID, err)
		return
	}
	if exec.NonRetriable {
		m.finalizeFailure(node)
		return
	}
	maxRetries, delay := m.retryPolicy(job)
	if exec.AttemptNumber >= maxRetries+1 {
		m.finalizeFailure(node)
		return
	}
	m.scheduleRetry(job, node, exec.AttemptNumber+1, delay, exec.ParentExecutionID)
}

// retryPolicy resolves a job's effective retry policy. Explicit positive
// per-job values win; otherwise the per-operation-type configuration
// applies (so a discovery job never retries under the default config),
// with the data-model defaults as a last resort when no configuration
// store is wired.
func (m *Manager) retryPolicy(job domain.Job) (maxRetries int, delay time.Duration) {
	maxRetries = job.MaxRetries
	delaySeconds := job.RetryDelaySeconds
	if m.cfg != nil {
		oc := m.cfg.OperationConfigFor(job.OperationType)
		if maxRetries <= 0 {
			maxRetries = oc.MaxRetries
		}
		if delaySeconds <= 0 {
			delaySeconds = oc.RetryDelaySeconds
		}
	} else {
		if maxRetries <= 0 {
			maxRetries = 3
		}
		if delaySeconds <= 0 {
			delaySeconds = 120
		}
	}
	return maxRetries, time.Duration(delaySeconds) * time.Second
}

// finalizeFailure is reached once retries are exhausted (or the error is
// non-retriable): the OLT failure counter is incremented, never
// disabling the OLT, and the chain coordinator is told the master
// failed so it can apply its run_chain_on_failure policy.
func (m *Manager) finalizeFailure(node domain.CompositeNode) {
	job := node.Master
	if err := m.olts.IncrementFailureCount(job.OLTID); err != nil {
		m.log.Errorf("lifecycle: increment failure count for OLT %s: %v", job.OLTID, err)
	}
	if m.chain != nil {
		m.chain.OnMasterTerminal(node, domain.StateFailed)
	}
}

// scheduleRetry creates the next attempt's PENDING execution row
// immediately (so it is visible to the running-of-same-type gate and to
// startup recovery even before the delay elapses) and arranges for it to
// be submitted directly to the pool after the retry delay, bypassing the
// scheduler entirely. A submission the pool rejects is re-armed on the
// delay queue rather than left stranded: nothing else ever resubmits a
// retry's PENDING row. The retry keeps the failed attempt's parent
// execution, so a retried chain node still traces back to its master.
func (m *Manager) scheduleRetry(job domain.Job, node domain.CompositeNode, attempt int, delay time.Duration, parentExecutionID *string) {
	scheduledAt := m.clock.Now().Add(delay)

	exec, err := m.execs.InsertExecution(job, scheduledAt, attempt, parentExecutionID)
	if err != nil {
		m.log.Errorf("lifecycle: insert retry execution for job %s: %v", job.ID, err)
		return
	}

	retryNode := domain.CompositeNode{
		Master:            job,
		MasterExecutionID: exec.ID,
		Chain:             node.Chain,
		ScheduledAt:       scheduledAt,
	}

	var submit func()
	submit = func() {
		fresh, err := m.jobs.GetJob(job.ID)
		if err == nil && !fresh.Enabled {
			now := m.clock.Now()
			_ = m.execs.Transition(exec.ID, domain.StatePending, domain.StateInterrupted, store.TransitionFields{
				FinishedAt: &now,
				ErrorKind:  domain.ErrorDisabled,
			})
			return
		}
		if result := m.pool.Submit(retryNode); result == poller.Rejected {
			m.log.Warnf("lifecycle: pool rejected retry attempt %d for job %s, resubmitting in %s", attempt, job.ID, poolRetryDelay)
			m.retries.after(poolRetryDelay, submit)
		}
	}
	m.retries.after(delay, submit)
}
