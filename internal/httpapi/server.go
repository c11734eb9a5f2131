// Package httpapi serves the read-only observability surface:
// GET /pollers/stats and GET /scheduler/health.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/oltfleet/pollerd/internal/logging"
	"github.com/oltfleet/pollerd/internal/poller"
	"github.com/oltfleet/pollerd/internal/scheduler"
)

// PoolStatsSource is the narrow pool contract the stats endpoint reads.
type PoolStatsSource interface {
	Stats() poller.Stats
}

// SchedulerHealthSource is the narrow scheduler contract the health
// endpoint reads.
type SchedulerHealthSource interface {
	Health() scheduler.Health
}

// Server wraps a stdlib *http.Server exposing the observability surface.
type Server struct {
	http *http.Server
	log  logging.Logger
}

// New constructs a Server listening on addr. Start must be called to begin
// serving.
func New(addr string, pool PoolStatsSource, sched SchedulerHealthSource, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/pollers/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statsResponse(pool.Stats()))
	})
	mux.HandleFunc("/scheduler/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, healthResponse(sched.Health()))
	})
	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start begins serving in a background goroutine. Errors other than a
// clean shutdown are logged, matching the rest of the core's
// no-error-propagates-to-the-caller convention.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("httpapi: server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statsPayload struct {
	SlotCount         int     `json:"slot_count"`
	BusyCount         int     `json:"busy_count"`
	QueueDepth        int     `json:"queue_depth"`
	BusyPercentage    float64 `json:"busy_percentage"`
	TasksDelayedCount int64   `json:"tasks_delayed_count"`
}

func statsResponse(s poller.Stats) statsPayload {
	return statsPayload{
		SlotCount:         s.SlotCount,
		BusyCount:         s.BusyCount,
		QueueDepth:        s.QueueDepth,
		BusyPercentage:    s.BusyPercentage,
		TasksDelayedCount: s.TasksDelayedCount,
	}
}

type healthPayload struct {
	LastTickAt         time.Time `json:"last_tick_at"`
	LastTickDurationMS int64     `json:"last_tick_duration_ms"`
	JobsReadyCount     int       `json:"jobs_ready_count"`
	QuotaBlockedCount  int       `json:"quota_blocked_count"`
}

func healthResponse(h scheduler.Health) healthPayload {
	return healthPayload{
		LastTickAt:         h.LastTickAt,
		LastTickDurationMS: h.LastTickDurationMS,
		JobsReadyCount:     h.JobsReadyCount,
		QuotaBlockedCount:  h.QuotaBlockedCount,
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
