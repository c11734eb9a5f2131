// Package chain implements the chain coordinator: once a master
// execution reaches a terminal state, it materializes and submits the
// master's ordered chain jobs one at a time, each as its own singleton
// CompositeNode, waiting for each node's own terminal state (via the
// lifecycle manager, which applies retries before reporting it terminal)
// before advancing, unless a node is marked parallel_ok.
package chain

import (
	"sync"

	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/logging"
	"github.com/oltfleet/pollerd/internal/poller"
)

type chainState struct {
	jobs  []domain.Job
	index int
}

// Coordinator is the composition-root-owned chain coordinator. Like every
// other core component it carries no package-level state.
type Coordinator struct {
	execs ExecutionStore
	pool  Submitter
	clock clockcfg.Clock
	log   logging.Logger

	backoff *backoff

	mu     sync.Mutex
	chains map[string]*chainState // keyed by the true master's execution ID
}

// Config bundles the Coordinator's dependencies.
type Config struct {
	Executions ExecutionStore
	Pool       Submitter
	Clock      clockcfg.Clock
	Logger     logging.Logger
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clockcfg.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Coordinator{
		execs:   cfg.Executions,
		pool:    cfg.Pool,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		backoff: newBackoff(),
		chains:  make(map[string]*chainState),
	}
}

// Stop cancels any pending gate-blocked resubmission timers.
func (c *Coordinator) Stop() {
	c.backoff.stop()
}

// SetPool wires the pool after construction, breaking the composition
// root's construction cycle (the pool's completion callback ultimately
// reaches the Coordinator via the lifecycle manager).
func (c *Coordinator) SetPool(pool Submitter) {
	c.pool = pool
}

// OnMasterTerminal is invoked by the lifecycle manager once a composite
// node's execution reaches a truly terminal outcome (after retries are
// exhausted, if any). node.Master.ParentJobID distinguishes two cases:
// nil means this was a true master finishing its own run, and a new chain
// may start; non-nil means this was itself a chain node finishing, and an
// already-tracked chain should advance to its next node.
func (c *Coordinator) OnMasterTerminal(node domain.CompositeNode, state domain.ExecutionState) {
	job := node.Master

	if job.ParentJobID != nil {
		exec, err := c.execs.Get(node.MasterExecutionID)
		if err != nil {
			c.log.Errorf("chain: load execution %s to trace chain node: %v", node.MasterExecutionID, err)
			return
		}
		if exec.ParentExecutionID == nil {
			return
		}
		c.advanceAfter(*exec.ParentExecutionID, state)
		return
	}

	var toRun []domain.Job
	switch state {
	case domain.StateSuccess:
		toRun = node.Chain
	case domain.StateFailed:
		for _, cj := range node.Chain {
			if cj.RunChainOnFailure {
				toRun = append(toRun, cj)
			}
		}
	default:
		// INTERRUPTED: no designated fallback in this design; the chain
		// simply never starts.
	}
	if len(toRun) == 0 {
		return
	}

	c.mu.Lock()
	c.chains[node.MasterExecutionID] = &chainState{jobs: toRun}
	c.mu.Unlock()

	c.advance(node.MasterExecutionID)
}

// advanceAfter moves a tracked chain past its just-terminated node. A
// chain stops at the first node that does not end in SUCCESS; the next
// node runs anyway only when it is itself marked run_chain_on_failure.
func (c *Coordinator) advanceAfter(masterExecutionID string, prevState domain.ExecutionState) {
	c.mu.Lock()
	st, ok := c.chains[masterExecutionID]
	if ok {
		st.index++
		if prevState != domain.StateSuccess && st.index < len(st.jobs) && !st.jobs[st.index].RunChainOnFailure {
			delete(c.chains, masterExecutionID)
			ok = false
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.advance(masterExecutionID)
}

// advance submits the next pending chain node for masterExecutionID. When
// a node is parallel_ok, it is submitted and advance immediately recurses
// to the following node without waiting for a terminal callback; otherwise
// advance returns and waits to be called again from OnMasterTerminal once
// the just-submitted node itself terminates.
func (c *Coordinator) advance(masterExecutionID string) {
	c.mu.Lock()
	st, ok := c.chains[masterExecutionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if st.index >= len(st.jobs) {
		delete(c.chains, masterExecutionID)
		c.mu.Unlock()
		return
	}
	job := st.jobs[st.index]
	c.mu.Unlock()

	c.submitNode(masterExecutionID, job, 0)

	if job.ParallelOK {
		c.advanceAfter(masterExecutionID, domain.StateSuccess)
	}
}

// submitNode creates and submits a chain node's execution, subject to the
// per-OLT lock (enforced by the pool itself) and the running-of-same-type
// gate (checked here, since chain nodes bypass the scheduler that would
// otherwise apply it). A gate-blocked node is retried with exponential
// backoff rather than failed outright.
func (c *Coordinator) submitNode(masterExecutionID string, job domain.Job, attempt int) {
	blocked, err := c.execs.ExistsNonTerminal(job.OLTID, job.OperationType)
	if err != nil {
		c.log.Errorf("chain: running-of-same-type check for job %s: %v", job.ID, err)
	}
	if blocked {
		d := delayFor(attempt)
		c.log.Infof("chain: job %s blocked by an in-flight execution of the same type on OLT %s, retrying in %s", job.ID, job.OLTID, d)
		c.backoff.after(d, func() { c.submitNode(masterExecutionID, job, attempt+1) })
		return
	}

	now := c.clock.Now()
	parent := masterExecutionID
	exec, err := c.execs.InsertExecution(job, now, 1, &parent)
	if err != nil {
		c.log.Errorf("chain: insert execution for chain job %s: %v", job.ID, err)
		return
	}

	node := domain.CompositeNode{
		Master:            job,
		MasterExecutionID: exec.ID,
		ScheduledAt:       now,
	}
	c.resubmit(node, attempt)
}

// resubmit drives a chain node's Submit with the same exponential backoff
// used for gate-blocked nodes, so a full pool FIFO delays the node instead
// of stranding its PENDING row. The running-of-same-type gate is not
// re-checked here: the node's own PENDING row would trip it.
func (c *Coordinator) resubmit(node domain.CompositeNode, attempt int) {
	if result := c.pool.Submit(node); result == poller.Rejected {
		d := delayFor(attempt)
		c.log.Warnf("chain: pool rejected chain job %s (FIFO full), resubmitting in %s", node.Master.ID, d)
		c.backoff.after(d, func() { c.resubmit(node, attempt+1) })
	}
}
