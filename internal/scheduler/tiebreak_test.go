package scheduler

import (
	"testing"
	"time"

	"github.com/oltfleet/pollerd/internal/domain"
)

func TestSortCandidatesOrdersByNextRunAtFirst(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobs := []domain.Job{
		{ID: "b", NextRunAt: t0.Add(time.Minute)},
		{ID: "a", NextRunAt: t0},
	}
	out := sortCandidates(jobs, nil)
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("order = %v, want a before b", []string{out[0].ID, out[1].ID})
	}
}

func TestSortCandidatesBreaksTiesByOperationType(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobs := []domain.Job{
		{ID: "x", NextRunAt: t0, OperationType: domain.OperationWalk},
		{ID: "y", NextRunAt: t0, OperationType: domain.OperationDiscovery},
	}
	out := sortCandidates(jobs, nil)
	if out[0].ID != "y" || out[1].ID != "x" {
		t.Fatalf("order = %v, want discovery before walk", []string{out[0].ID, out[1].ID})
	}
}

func TestSortCandidatesFallsBackToJobID(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	jobs := []domain.Job{
		{ID: "zeta", NextRunAt: t0, OperationType: domain.OperationGet},
		{ID: "alpha", NextRunAt: t0, OperationType: domain.OperationGet},
	}
	out := sortCandidates(jobs, nil)
	if out[0].ID != "alpha" || out[1].ID != "zeta" {
		t.Fatalf("order = %v, want alpha before zeta", []string{out[0].ID, out[1].ID})
	}
}

func TestSortCandidatesPriorityOverrideBreaksTieBeforeJobID(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pri := newPriorityOverride()
	jobs := []domain.Job{
		{ID: "zeta", NextRunAt: t0, OperationType: domain.OperationGet, QueueHint: "IntervalSeconds"},
		{ID: "alpha", NextRunAt: t0, OperationType: domain.OperationGet, QueueHint: "IntervalSeconds"},
	}
	jobs[0].IntervalSeconds = 600
	jobs[1].IntervalSeconds = 60

	out := sortCandidates(jobs, pri)
	if out[0].ID != "zeta" || out[1].ID != "alpha" {
		t.Fatalf("order = %v, want the higher queue_hint score (zeta, 600) first", []string{out[0].ID, out[1].ID})
	}
}

func TestSortCandidatesNeverReordersAcrossNextRunAt(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pri := newPriorityOverride()
	jobs := []domain.Job{
		{ID: "late", NextRunAt: t0.Add(time.Hour), OperationType: domain.OperationGet, QueueHint: "9999"},
		{ID: "early", NextRunAt: t0, OperationType: domain.OperationGet, QueueHint: "0"},
	}
	out := sortCandidates(jobs, pri)
	if out[0].ID != "early" || out[1].ID != "late" {
		t.Fatalf("order = %v, a queue_hint override must never beat next_run_at", []string{out[0].ID, out[1].ID})
	}
}

func TestPriorityOverrideScoreDefaultsToZero(t *testing.T) {
	pri := newPriorityOverride()
	job := domain.Job{QueueHint: ""}
	if got := pri.score(job); got != 0 {
		t.Errorf("score with empty queue_hint = %v, want 0", got)
	}
}

func TestPriorityOverrideScoreEvaluatesExpression(t *testing.T) {
	pri := newPriorityOverride()
	job := domain.Job{QueueHint: "IntervalSeconds * 2", IntervalSeconds: 30}
	if got, want := pri.score(job), float64(60); got != want {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestPriorityOverrideScoreTreatsInvalidExpressionAsZero(t *testing.T) {
	pri := newPriorityOverride()
	job := domain.Job{QueueHint: "not ( valid expr"}
	if got := pri.score(job); got != 0 {
		t.Errorf("score for an invalid expression = %v, want 0 (never fail a tick)", got)
	}
}

func TestPriorityOverrideScoreCachesCompiledPrograms(t *testing.T) {
	pri := newPriorityOverride()
	job := domain.Job{QueueHint: "MaxRetries", MaxRetries: 3}
	first := pri.score(job)
	if _, ok := pri.cache[job.QueueHint]; !ok {
		t.Fatal("compiled program not cached after first score()")
	}
	second := pri.score(job)
	if first != second {
		t.Errorf("score changed between calls: %v then %v", first, second)
	}
}
