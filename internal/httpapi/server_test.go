package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oltfleet/pollerd/internal/poller"
	"github.com/oltfleet/pollerd/internal/scheduler"
)

type fakePoolStats struct {
	stats poller.Stats
}

func (f fakePoolStats) Stats() poller.Stats { return f.stats }

type fakeSchedulerHealth struct {
	health scheduler.Health
}

func (f fakeSchedulerHealth) Health() scheduler.Health { return f.health }

func TestPollersStatsEndpoint(t *testing.T) {
	pool := fakePoolStats{stats: poller.Stats{SlotCount: 10, BusyCount: 3, QueueDepth: 2, BusyPercentage: 30.0, TasksDelayedCount: 5}}
	sched := fakeSchedulerHealth{}

	srv := New("127.0.0.1:0", pool, sched, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/pollers/stats", nil)
	srv.http.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var payload statsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.SlotCount != 10 || payload.BusyCount != 3 || payload.QueueDepth != 2 || payload.TasksDelayedCount != 5 {
		t.Errorf("payload = %+v, want the pool's stats verbatim", payload)
	}
}

func TestSchedulerHealthEndpoint(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pool := fakePoolStats{}
	sched := fakeSchedulerHealth{health: scheduler.Health{LastTickAt: now, LastTickDurationMS: 42, JobsReadyCount: 7, QuotaBlockedCount: 1}}

	srv := New("127.0.0.1:0", pool, sched, nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/scheduler/health", nil)
	srv.http.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var payload healthPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.JobsReadyCount != 7 || payload.QuotaBlockedCount != 1 || payload.LastTickDurationMS != 42 {
		t.Errorf("payload = %+v, want the scheduler's health verbatim", payload)
	}
	if !payload.LastTickAt.Equal(now) {
		t.Errorf("LastTickAt = %v, want %v", payload.LastTickAt, now)
	}
}
