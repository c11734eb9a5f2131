package scheduler

import (
	"time"

	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
)

// applyQuotaGate defers a job that has hit its rolling-hour
// terminal-execution quota to the start of the next UTC hour and reports
// it as blocked.
func (s *Scheduler) applyQuotaGate(job domain.Job, now time.Time) (blocked bool, err error) {
	since := now.Add(-1 * time.Hour)
	count, err := s.execs.CountTerminalSince(job.ID, since)
	if err != nil {
		return false, err
	}
	if count < job.Quota() {
		return false, nil
	}
	next := clockcfg.StartOfNextHourUTC(now)
	if err := s.jobs.UpdateNextRunAt(job.ID, next); err != nil {
		return true, err
	}
	s.log.Infof("scheduler: job %s reached its maximum quota (%d/hr), deferred to %s", job.ID, job.Quota(), next)
	return true, nil
}

// applyCollisionGate defers a job when an execution of the same
// (olt_id, operation_type) is already PENDING or RUNNING, pushing
// next_run_at out by min(60s, interval/2) and reporting it as blocked.
func (s *Scheduler) applyCollisionGate(job domain.Job, now time.Time) (blocked bool, err error) {
	exists, err := s.execs.ExistsNonTerminal(job.OLTID, job.OperationType)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	delay := 60 * time.Second
	if half := time.Duration(job.IntervalSeconds) * time.Second / 2; half < delay {
		delay = half
	}
	next := now.Add(delay)
	if next.Before(now) {
		next = now
	}
	if err := s.jobs.UpdateNextRunAt(job.ID, next); err != nil {
		return true, err
	}
	s.log.Infof("scheduler: job %s deferred %s, an execution of the same type is already in flight on OLT %s", job.ID, delay, job.OLTID)
	return true, nil
}
