// Package metricsx exposes process-wide counters via the standard
// library's expvar: a small set of named counters published under
// expvar.Publish, scraped from /debug/vars alongside the dedicated
// observability endpoints.
package metricsx

import (
	"expvar"
	"sync"
	"sync/atomic"
)

var publishOnce sync.Once

// Counters holds the process-wide execution counters. A single instance
// is constructed at the composition root and threaded into every
// component that increments one; there is no package-level singleton.
type Counters struct {
	ExecutionsSucceeded   atomic.Int64
	ExecutionsFailed      atomic.Int64
	ExecutionsInterrupted atomic.Int64
	QuotaBlocked          atomic.Int64
	CollisionBlocked      atomic.Int64
	ChainNodesSubmitted   atomic.Int64
	RetriesScheduled      atomic.Int64
}

// New constructs a Counters instance and publishes it under expvar so
// operators can scrape /debug/vars alongside the dedicated observability
// endpoints.
func New() *Counters {
	c := &Counters{}
	// expvar.Publish panics if called twice with the same name; a process
	// only ever constructs one production Counters instance, but tests
	// may call New() repeatedly, so only the first registration takes.
	publishOnce.Do(func() {
		expvar.Publish("pollerd_executions_succeeded", expvar.Func(func() any { return c.ExecutionsSucceeded.Load() }))
		expvar.Publish("pollerd_executions_failed", expvar.Func(func() any { return c.ExecutionsFailed.Load() }))
		expvar.Publish("pollerd_executions_interrupted", expvar.Func(func() any { return c.ExecutionsInterrupted.Load() }))
		expvar.Publish("pollerd_quota_blocked", expvar.Func(func() any { return c.QuotaBlocked.Load() }))
		expvar.Publish("pollerd_collision_blocked", expvar.Func(func() any { return c.CollisionBlocked.Load() }))
		expvar.Publish("pollerd_chain_nodes_submitted", expvar.Func(func() any { return c.ChainNodesSubmitted.Load() }))
		expvar.Publish("pollerd_retries_scheduled", expvar.Func(func() any { return c.RetriesScheduled.Load() }))
	})
	return c
}

// Observe records a terminal execution state against the appropriate
// counter. Call from the lifecycle manager's completion handling.
func (c *Counters) Observe(state string) {
	switch state {
	case "SUCCESS":
		c.ExecutionsSucceeded.Add(1)
	case "FAILED":
		c.ExecutionsFailed.Add(1)
	case "INTERRUPTED":
		c.ExecutionsInterrupted.Add(1)
	}
}
