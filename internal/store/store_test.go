package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pollerd.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestJobCRUDAndListEnabledDue(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	due := domain.Job{ID: "job-due", OLTID: "olt-1", Enabled: true, OperationType: domain.OperationDiscovery, IntervalSeconds: 600, NextRunAt: now.Add(-time.Minute)}
	future := domain.Job{ID: "job-future", OLTID: "olt-1", Enabled: true, OperationType: domain.OperationDiscovery, IntervalSeconds: 600, NextRunAt: now.Add(time.Hour)}
	disabled := domain.Job{ID: "job-disabled", OLTID: "olt-1", Enabled: false, OperationType: domain.OperationDiscovery, IntervalSeconds: 600, NextRunAt: now.Add(-time.Minute)}

	for _, j := range []domain.Job{due, future, disabled} {
		if err := s.SaveJob(j); err != nil {
			t.Fatalf("SaveJob(%s): %v", j.ID, err)
		}
	}

	got, err := s.ListEnabledDue(now)
	if err != nil {
		t.Fatalf("ListEnabledDue: %v", err)
	}
	if len(got) != 1 || got[0].ID != "job-due" {
		t.Fatalf("ListEnabledDue = %+v, want only job-due", got)
	}

	if err := s.UpdateNextRunAt("job-due", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("UpdateNextRunAt: %v", err)
	}
	reloaded, err := s.GetJob("job-due")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !reloaded.NextRunAt.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("NextRunAt after update = %v, want %v", reloaded.NextRunAt, now.Add(10*time.Minute))
	}

	if _, err := s.GetJob("missing"); err != ErrNotFound {
		t.Errorf("GetJob(missing) err = %v, want ErrNotFound", err)
	}
}

func TestGetChainOrdering(t *testing.T) {
	s := newTestStore(t)
	masterID := "master-1"
	c2 := domain.Job{ID: "chain-2", ParentJobID: &masterID, ChainPosition: 2}
	c1 := domain.Job{ID: "chain-1", ParentJobID: &masterID, ChainPosition: 1}
	other := domain.Job{ID: "unrelated"}
	for _, j := range []domain.Job{c2, c1, other} {
		if err := s.SaveJob(j); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}
	chain, err := s.GetChain(masterID)
	if err != nil {
		t.Fatalf("GetChain: %v", err)
	}
	if len(chain) != 2 || chain[0].ID != "chain-1" || chain[1].ID != "chain-2" {
		t.Fatalf("GetChain = %+v, want [chain-1, chain-2] in order", chain)
	}
}

func TestExecutionTransitionCAS(t *testing.T) {
	s := newTestStore(t)
	job := domain.Job{ID: "job-1", OLTID: "olt-1", OperationType: domain.OperationDiscovery, IntervalSeconds: 600}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	exec, err := s.InsertExecution(job, now, 1, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	if exec.State != domain.StatePending {
		t.Fatalf("new execution state = %s, want PENDING", exec.State)
	}

	started := now.Add(time.Second)
	if err := s.Transition(exec.ID, domain.StatePending, domain.StateRunning, TransitionFields{StartedAt: &started, WorkerID: "slot-0"}); err != nil {
		t.Fatalf("Transition PENDING->RUNNING: %v", err)
	}

	// A second CAS attempt from the same stale "from" state must conflict.
	if err := s.Transition(exec.ID, domain.StatePending, domain.StateRunning, TransitionFields{}); err != ErrConflict {
		t.Fatalf("stale Transition err = %v, want ErrConflict", err)
	}

	finished := started.Add(2 * time.Second)
	dur := int64(2000)
	if err := s.Transition(exec.ID, domain.StateRunning, domain.StateSuccess, TransitionFields{FinishedAt: &finished, DurationMS: &dur}); err != nil {
		t.Fatalf("Transition RUNNING->SUCCESS: %v", err)
	}

	got, err := s.Get(exec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != domain.StateSuccess {
		t.Errorf("final state = %s, want SUCCESS", got.State)
	}
	if got.WorkerID != "slot-0" {
		t.Errorf("WorkerID = %s, want slot-0 (must survive the later transition)", got.WorkerID)
	}
	if got.DurationMS != 2000 {
		t.Errorf("DurationMS = %d, want 2000", got.DurationMS)
	}
}

func TestCountTerminalSinceWindow(t *testing.T) {
	s := newTestStore(t)
	job := domain.Job{ID: "job-1", OLTID: "olt-1", OperationType: domain.OperationDiscovery, IntervalSeconds: 900}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Two executions inside the window, one stale outside it.
	insertTerminal(t, s, job, now.Add(-30*time.Minute))
	insertTerminal(t, s, job, now.Add(-10*time.Minute))
	insertTerminal(t, s, job, now.Add(-2*time.Hour))

	count, err := s.CountTerminalSince(job.ID, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountTerminalSince: %v", err)
	}
	if count != 2 {
		t.Errorf("CountTerminalSince = %d, want 2", count)
	}
}

func insertTerminal(t *testing.T, s *BoltStore, job domain.Job, finishedAt time.Time) {
	t.Helper()
	exec, err := s.InsertExecution(job, finishedAt, 1, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	started := finishedAt
	if err := s.Transition(exec.ID, domain.StatePending, domain.StateRunning, TransitionFields{StartedAt: &started}); err != nil {
		t.Fatalf("Transition to RUNNING: %v", err)
	}
	if err := s.Transition(exec.ID, domain.StateRunning, domain.StateSuccess, TransitionFields{FinishedAt: &finishedAt}); err != nil {
		t.Fatalf("Transition to SUCCESS: %v", err)
	}
}

func TestExistsNonTerminal(t *testing.T) {
	s := newTestStore(t)
	job := domain.Job{ID: "job-1", OLTID: "olt-1", OperationType: domain.OperationDiscovery}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	exists, err := s.ExistsNonTerminal("olt-1", domain.OperationDiscovery)
	if err != nil || exists {
		t.Fatalf("ExistsNonTerminal before insert = %v, %v, want false, nil", exists, err)
	}

	exec, err := s.InsertExecution(job, now, 1, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	exists, err = s.ExistsNonTerminal("olt-1", domain.OperationDiscovery)
	if err != nil || !exists {
		t.Fatalf("ExistsNonTerminal after PENDING insert = %v, %v, want true, nil", exists, err)
	}

	finished := now.Add(time.Second)
	if err := s.Transition(exec.ID, domain.StatePending, domain.StateFailed, TransitionFields{FinishedAt: &finished, ErrorKind: domain.ErrorTransport}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	exists, err = s.ExistsNonTerminal("olt-1", domain.OperationDiscovery)
	if err != nil || exists {
		t.Fatalf("ExistsNonTerminal after terminal = %v, %v, want false, nil", exists, err)
	}
}

func TestListNonTerminalForRecovery(t *testing.T) {
	s := newTestStore(t)
	job := domain.Job{ID: "job-1", OLTID: "olt-1", OperationType: domain.OperationGet}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	pending, err := s.InsertExecution(job, now, 1, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	running, err := s.InsertExecution(job, now, 2, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	started := now
	if err := s.Transition(running.ID, domain.StatePending, domain.StateRunning, TransitionFields{StartedAt: &started}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	done, err := s.InsertExecution(job, now, 3, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	finished := now
	if err := s.Transition(done.ID, domain.StatePending, domain.StateSuccess, TransitionFields{FinishedAt: &finished}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	nonTerminal, err := s.ListNonTerminal()
	if err != nil {
		t.Fatalf("ListNonTerminal: %v", err)
	}
	ids := map[string]bool{}
	for _, e := range nonTerminal {
		ids[e.ID] = true
	}
	if len(ids) != 2 || !ids[pending.ID] || !ids[running.ID] {
		t.Fatalf("ListNonTerminal = %+v, want exactly pending+running executions", nonTerminal)
	}
}

func TestOLTFailureCounter(t *testing.T) {
	s := newTestStore(t)
	olt := domain.OLT{ID: "olt-1", Enabled: true}
	if err := s.SaveOLT(olt); err != nil {
		t.Fatalf("SaveOLT: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementFailureCount("olt-1"); err != nil {
			t.Fatalf("IncrementFailureCount: %v", err)
		}
	}
	got, err := s.GetOLT("olt-1")
	if err != nil {
		t.Fatalf("GetOLT: %v", err)
	}
	if got.ConsecutiveFailureCount != 3 {
		t.Errorf("ConsecutiveFailureCount = %d, want 3", got.ConsecutiveFailureCount)
	}
	if !got.Enabled {
		t.Error("OLT must never be auto-disabled by failure increments")
	}

	if err := s.ResetFailureCount("olt-1"); err != nil {
		t.Fatalf("ResetFailureCount: %v", err)
	}
	got, _ = s.GetOLT("olt-1")
	if got.ConsecutiveFailureCount != 0 {
		t.Errorf("ConsecutiveFailureCount after reset = %d, want 0", got.ConsecutiveFailureCount)
	}
}

func TestDeleteExecutionRollsBackPendingRow(t *testing.T) {
	s := newTestStore(t)
	job := domain.Job{ID: "job-1", OLTID: "olt-1", OperationType: domain.OperationDiscovery}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	exec, err := s.InsertExecution(job, now, 1, nil)
	if err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	if err := s.DeleteExecution(exec.ID); err != nil {
		t.Fatalf("DeleteExecution: %v", err)
	}
	if _, err := s.Get(exec.ID); err != ErrNotFound {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	exists, err := s.ExistsNonTerminal("olt-1", domain.OperationDiscovery)
	if err != nil || exists {
		t.Errorf("ExistsNonTerminal after rollback = %v, %v, want false, nil (the gate must not see the deleted row)", exists, err)
	}
}

func TestPruneOlderThan(t *testing.T) {
	s := newTestStore(t)
	job := domain.Job{ID: "job-1", OLTID: "olt-1", OperationType: domain.OperationDiscovery}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	insertTerminal(t, s, job, now.Add(-48*time.Hour))
	insertTerminal(t, s, job, now.Add(-time.Hour))

	pruned, err := s.PruneOlderThan(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	remaining, err := s.CountTerminalSince(job.ID, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("CountTerminalSince: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining terminal count = %d, want 1", remaining)
	}
}
