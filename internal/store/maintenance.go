package store

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oltfleet/pollerd/internal/logging"
)

// Janitor runs a cron-scheduled retention sweep over terminal
// executions. Quota queries only ever look back one hour, so terminal
// rows past the retention window exist solely for operators and can be
// pruned.
type Janitor struct {
	store     *BoltStore
	cron      *cron.Cron
	retention time.Duration
	log       logging.Logger
}

// NewJanitor builds a Janitor that prunes terminal executions older than
// retention, running on the given cron schedule (default "every 10
// minutes" if spec is empty).
func NewJanitor(store *BoltStore, retention time.Duration, spec string, log logging.Logger) (*Janitor, error) {
	if spec == "" {
		spec = "@every 10m"
	}
	if log == nil {
		log = logging.Nop()
	}
	j := &Janitor{store: store, cron: cron.New(), retention: retention, log: log}
	_, err := j.cron.AddFunc(spec, j.sweep)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the cron scheduler.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the cron scheduler and waits for in-flight runs to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }

func (j *Janitor) sweep() {
	cutoff := time.Now().Add(-j.retention)
	n, err := j.store.PruneOlderThan(cutoff)
	if err != nil {
		j.log.Errorf("janitor: prune executions: %v", err)
		return
	}
	if n > 0 {
		j.log.Infof("janitor: pruned %d terminal executions older than %s", n, j.retention)
	}
}
