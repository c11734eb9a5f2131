package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/logging"
	"github.com/oltfleet/pollerd/internal/snmpworker"
)

type slot struct {
	index int

	mu                 sync.Mutex
	currentExecutionID string
}

// Pool is a fixed-size set of concurrent execution slots. Sizing is a
// configuration value applied at construction; resizing means
// drain-and-replace at restart, never online.
type Pool struct {
	slots    []*slot
	slotChan chan int
	fifo     chan domain.CompositeNode

	execStore  ExecutionStore
	checker    EnabledChecker
	worker     snmpworker.Worker
	cfg        *clockcfg.ConfigStore
	clock      clockcfg.Clock
	log        logging.Logger
	onComplete CompletionFunc

	locks *oltLockManager

	rateMu   sync.Mutex
	limiters map[string]*rate.Limiter

	tasksDelayed atomic.Int64

	quit chan struct{}
	wg   sync.WaitGroup
}

// Config bundles the Pool's dependencies; there is no package-level singleton, per
// the redesign notes; every caller constructs its own composition root.
type Config struct {
	PoolSize       int
	QueueCapacity  int // 0 = derive from cfg.QueueCapacityFactor
	ExecutionStore ExecutionStore
	Checker        EnabledChecker
	Worker         snmpworker.Worker
	ConfigStore    *clockcfg.ConfigStore
	Clock          clockcfg.Clock
	Logger         logging.Logger
	OnComplete     CompletionFunc
}

// New constructs a Pool and starts its background dispatcher. Pool size 0
// is legal: Submit will then always return Rejected.
func New(cfg Config) *Pool {
	if cfg.Clock == nil {
		cfg.Clock = clockcfg.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		factor := 4
		if cfg.ConfigStore != nil && cfg.ConfigStore.QueueCapacityFactor > 0 {
			factor = cfg.ConfigStore.QueueCapacityFactor
		}
		queueCap = factor * cfg.PoolSize
		if queueCap <= 0 {
			queueCap = factor
		}
	}

	p := &Pool{
		slotChan:   make(chan int, cfg.PoolSize),
		fifo:       make(chan domain.CompositeNode, queueCap),
		execStore:  cfg.ExecutionStore,
		checker:    cfg.Checker,
		worker:     cfg.Worker,
		cfg:        cfg.ConfigStore,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		onComplete: cfg.OnComplete,
		locks:      newOLTLockManager(),
		limiters:   make(map[string]*rate.Limiter),
		quit:       make(chan struct{}),
	}
	p.slots = make([]*slot, cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		p.slots[i] = &slot{index: i}
		p.slotChan <- i
	}

	p.wg.Add(1)
	go p.dispatchLoop()

	return p
}

// Submit hands a node to the pool: Accepted if a free slot starts it
// immediately, Queued if it waits on the bounded FIFO, Rejected if the
// FIFO is full.
func (p *Pool) Submit(node domain.CompositeNode) SubmitResult {
	if len(p.slots) == 0 {
		return Rejected
	}
	select {
	case <-p.quit:
		return Rejected
	default:
	}
	select {
	case idx := <-p.slotChan:
		go p.runNode(idx, node)
		return Accepted
	default:
	}
	select {
	case p.fifo <- node:
		p.tasksDelayed.Add(1)
		return Queued
	default:
		return Rejected
	}
}

// requeue puts a node back on the FIFO tail (used when a lock acquisition
// times out); if the FIFO is full the node is dropped with a log, and the
// scheduler/lifecycle/chain coordinator that originally submitted it owns
// retry policy for that case.
func (p *Pool) requeue(node domain.CompositeNode) {
	select {
	case p.fifo <- node:
		p.tasksDelayed.Add(1)
	default:
		p.log.Warnf("pool: FIFO full, dropping requeued node for job %s", node.Master.ID)
	}
}

func (p *Pool) dispatchLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case idx := <-p.slotChan:
			select {
			case node := <-p.fifo:
				go p.runNode(idx, node)
			case <-p.quit:
				p.slotChan <- idx
				return
			}
		}
	}
}

func (p *Pool) limiterFor(oltID string) *rate.Limiter {
	p.rateMu.Lock()
	defer p.rateMu.Unlock()
	l, ok := p.limiters[oltID]
	if !ok {
		// Defense-in-depth burst guard at the transport edge, independent
		// of the scheduler's next_run_at smoothing: at most ~1 request
		// per second sustained, burst of 3, per OLT.
		l = rate.NewLimiter(rate.Limit(1), 3)
		p.limiters[oltID] = l
	}
	return l
}

// Stats reports the pool aggregate. Busy/free per slot is determined by
// querying the execution store for the slot's last execution: the
// stored state is authoritative over the in-memory flag, so an external
// interruption is reflected immediately.
func (p *Pool) Stats() Stats {
	perSlot := make([]SlotStatus, len(p.slots))
	busy := 0
	for i, s := range p.slots {
		s.mu.Lock()
		execID := s.currentExecutionID
		s.mu.Unlock()

		status := SlotStatus{Index: i, CurrentExecutionID: execID}
		if execID != "" {
			if exec, err := p.execStore.Get(execID); err == nil && !exec.State.IsTerminal() {
				status.Busy = true
				busy++
			}
		}
		perSlot[i] = status
	}
	slotCount := len(p.slots)
	pct := 0.0
	if slotCount > 0 {
		pct = 100.0 * float64(busy) / float64(slotCount)
	}
	return Stats{
		SlotCount:         slotCount,
		BusyCount:         busy,
		QueueDepth:        len(p.fifo),
		BusyPercentage:    pct,
		PerSlotStatus:     perSlot,
		TasksDelayedCount: p.tasksDelayed.Load(),
	}
}

// Shutdown stops accepting into the FIFO and waits up to grace for
// in-flight slots to finish; executions still running after grace are left
// to be interrupted by the caller, since only the lifecycle manager may
// write terminal states it didn't itself observe from a slot.
func (p *Pool) Shutdown(ctx context.Context, grace time.Duration) {
	close(p.quit)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		// Every slot index is back on slotChan once no node is in flight.
		for len(p.slotChan) < len(p.slots) {
			time.Sleep(10 * time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		p.log.Warnf("pool: shutdown grace period elapsed with slots still busy")
	case <-ctx.Done():
	}
}
