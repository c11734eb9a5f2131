// Package scheduler implements the dynamic scheduler: a periodic tick
// that selects ready jobs, applies the quota and running-of-same-type
// gates, assembles master jobs and their chains into CompositeNodes,
// submits them to the pool, and smooths upcoming bursts by rewriting
// next_run_at.
package scheduler

import (
	"sync"
	"time"

	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/logging"
	"github.com/oltfleet/pollerd/internal/poller"
)

// Health is the observability snapshot served at GET /scheduler/health.
type Health struct {
	LastTickAt         time.Time
	LastTickDurationMS int64
	JobsReadyCount     int
	QuotaBlockedCount  int
}

// Scheduler is the composition-root-owned dynamic scheduler. It carries no
// package-level state; every dependency is injected.
type Scheduler struct {
	jobs     JobStore
	olts     OLTStore
	execs    ExecutionStore
	pool     Submitter
	cfg      *clockcfg.ConfigStore
	clock    clockcfg.Clock
	log      logging.Logger
	priority *priorityOverride

	mu     sync.Mutex
	health Health

	quit chan struct{}
	wg   sync.WaitGroup
}

// Config bundles the Scheduler's dependencies.
type Config struct {
	Jobs        JobStore
	OLTs        OLTStore
	Executions  ExecutionStore
	Pool        Submitter
	ConfigStore *clockcfg.ConfigStore
	Clock       clockcfg.Clock
	Logger      logging.Logger
}

// New constructs a Scheduler. Call Start to begin ticking, or Tick
// directly for tests that want to drive it step by step.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockcfg.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Scheduler{
		jobs:     cfg.Jobs,
		olts:     cfg.OLTs,
		execs:    cfg.Executions,
		pool:     cfg.Pool,
		cfg:      cfg.ConfigStore,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		priority: newPriorityOverride(),
		quit:     make(chan struct{}),
	}
}

// Start launches the periodic tick loop in a background goroutine.
func (s *Scheduler) Start() {
	interval := 30 * time.Second
	if s.cfg != nil && s.cfg.TickInterval > 0 {
		interval = s.cfg.TickInterval
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop ends the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

// Health returns the most recent tick's observability snapshot.
func (s *Scheduler) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Tick runs one scheduling pass. It never panics or returns an error to the
// caller: every failure is logged and the tick continues with the next
// candidate.
func (s *Scheduler) Tick() {
	start := s.clock.Now()
	quotaBlocked := 0
	readyCount := 0

	due, err := s.jobs.ListEnabledDue(start)
	if err != nil {
		s.log.Errorf("scheduler: list enabled due jobs: %v", err)
		s.recordHealth(start, 0, 0)
		return
	}

	candidates := sortCandidates(due, s.priority)

	for _, job := range candidates {
		// Chain jobs are never enqueued directly by the scheduler; they
		// arrive only via the Chain Coordinator once their master
		// completes.
		if job.ParentJobID != nil {
			continue
		}

		olt, err := s.olts.GetOLT(job.OLTID)
		if err != nil {
			s.log.Warnf("scheduler: job %s references unknown OLT %s: %v", job.ID, job.OLTID, err)
			continue
		}
		if !olt.Enabled {
			continue
		}

		readyCount++

		blocked, err := s.applyQuotaGate(job, start)
		if err != nil {
			s.log.Errorf("scheduler: quota gate for job %s: %v", job.ID, err)
			continue
		}
		if blocked {
			quotaBlocked++
			continue
		}

		blocked, err = s.applyCollisionGate(job, start)
		if err != nil {
			s.log.Errorf("scheduler: collision gate for job %s: %v", job.ID, err)
			continue
		}
		if blocked {
			continue
		}

		s.submitJob(job, start)
	}

	s.BurstSmooth(start)
	s.recordHealth(start, readyCount, quotaBlocked)
}

func (s *Scheduler) recordHealth(tickStart time.Time, readyCount, quotaBlocked int) {
	durationMS := s.clock.Now().Sub(tickStart).Milliseconds()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = Health{
		LastTickAt:         tickStart,
		LastTickDurationMS: durationMS,
		JobsReadyCount:     readyCount,
		QuotaBlockedCount:  quotaBlocked,
	}
}

// submitJob creates the PENDING execution, assembles the CompositeNode
// (gathering chain jobs if this job has any), rewrites next_run_at, and
// hands the node to the pool.
func (s *Scheduler) submitJob(job domain.Job, now time.Time) {
	var chain []domain.Job
	if job.OperationType.IsMasterEligible() {
		found, err := s.jobs.GetChain(job.ID)
		if err != nil {
			s.log.Errorf("scheduler: load chain for job %s: %v", job.ID, err)
		} else {
			chain = found
		}
	}

	exec, err := s.execs.InsertExecution(job, now, 1, nil)
	if err != nil {
		s.log.Errorf("scheduler: insert execution for job %s: %v", job.ID, err)
		return
	}

	node := domain.CompositeNode{
		Master:            job,
		MasterExecutionID: exec.ID,
		Chain:             chain,
		ScheduledAt:       now,
	}

	if result := s.pool.Submit(node); result == poller.Rejected {
		// A full pool means this candidate was simply not picked this
		// tick: roll back the PENDING row and leave next_run_at alone so
		// the job stays due for the next tick.
		if derr := s.execs.DeleteExecution(exec.ID); derr != nil {
			s.log.Errorf("scheduler: roll back rejected execution %s: %v", exec.ID, derr)
		}
		s.log.Warnf("scheduler: pool rejected job %s (FIFO full), leaving it due for the next tick", job.ID)
		return
	}

	nextRun := now.Add(time.Duration(job.IntervalSeconds) * time.Second)
	if nextRun.Before(now) {
		// Clamp against backwards clock skew: never schedule a run in
		// the caller's past.
		nextRun = now
	}
	if err := s.jobs.UpdateNextRunAt(job.ID, nextRun); err != nil {
		s.log.Errorf("scheduler: update next_run_at for job %s: %v", job.ID, err)
	}
}
