// Command pollerd is the daemon entrypoint: it wires the composition root
// (clock/config, store, SNMP worker, pool, scheduler, lifecycle manager,
// chain coordinator, janitor, HTTP observability server) with no global
// singletons and runs until an OS signal requests graceful shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/oltfleet/pollerd/config"
	"github.com/oltfleet/pollerd/internal/chain"
	"github.com/oltfleet/pollerd/internal/clockcfg"
	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/httpapi"
	"github.com/oltfleet/pollerd/internal/lifecycle"
	"github.com/oltfleet/pollerd/internal/logging"
	"github.com/oltfleet/pollerd/internal/metricsx"
	"github.com/oltfleet/pollerd/internal/poller"
	"github.com/oltfleet/pollerd/internal/scheduler"
	"github.com/oltfleet/pollerd/internal/snmpworker"
	"github.com/oltfleet/pollerd/internal/store"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to JSON configuration file")
		dbPath     = pflag.String("db", "", "override the configured BoltDB path")
		httpAddr   = pflag.String("http-addr", "", "override the configured observability HTTP listen address")
		seedDemo   = pflag.Bool("seed-demo", false, "populate a handful of synthetic OLTs and jobs on startup")
	)
	pflag.Parse()

	log := logging.New("pollerd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	boltStore, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Errorf("open store: %v", err)
		os.Exit(1)
	}
	defer boltStore.Close()

	if *seedDemo {
		seedDemoData(boltStore, log)
	}

	configStore := cfg.ToConfigStore()
	clock := clockcfg.SystemClock{}
	counters := metricsx.New()

	lifecycleMgr := lifecycle.New(lifecycle.Config{
		Executions:  boltStore,
		Jobs:        boltStore,
		OLTs:        boltStore,
		Pool:        nil, // wired below, after the pool exists
		Chain:       nil, // wired below, after the chain coordinator exists
		ConfigStore: configStore,
		Clock:       clock,
		Logger:      logging.With(log, map[string]any{"component": "lifecycle"}),
	})

	chainCoord := chain.New(chain.Config{
		Executions: boltStore,
		Pool:       nil, // wired below, after the pool exists
		Clock:      clock,
		Logger:     logging.With(log, map[string]any{"component": "chain"}),
	})

	worker := snmpworker.NewGoSNMPWorker()

	pool := poller.New(poller.Config{
		PoolSize:       configStore.PoolSize,
		ExecutionStore: boltStore,
		Checker:        boltStore,
		Worker:         worker,
		ConfigStore:    configStore,
		Clock:          clock,
		Logger:         logging.With(log, map[string]any{"component": "pool"}),
		OnComplete: func(executionID string, state domain.ExecutionState, node domain.CompositeNode) {
			counters.Observe(string(state))
			lifecycleMgr.OnCompletion(executionID, state, node)
		},
	})

	// The pool and lifecycle/chain coordinator hold circular dependencies
	// (pool invokes lifecycle's callback; lifecycle and chain invoke the
	// pool's Submit) broken here in the composition root rather than by
	// any package exposing a mutable global.
	lifecycleMgr.SetPool(pool)
	lifecycleMgr.SetChain(chainCoord)
	chainCoord.SetPool(pool)

	if n, err := lifecycleMgr.Recover(); err != nil {
		log.Errorf("startup recovery: %v", err)
	} else if n > 0 {
		log.Infof("startup recovery: interrupted %d non-terminal executions", n)
	}

	sched := scheduler.New(scheduler.Config{
		Jobs:        boltStore,
		OLTs:        boltStore,
		Executions:  boltStore,
		Pool:        pool,
		ConfigStore: configStore,
		Clock:       clock,
		Logger:      logging.With(log, map[string]any{"component": "scheduler"}),
	})
	sched.Start()

	janitor, err := store.NewJanitor(boltStore, cfg.ExecutionRetentionDuration(), "", logging.With(log, map[string]any{"component": "janitor"}))
	if err != nil {
		log.Errorf("build janitor: %v", err)
	} else {
		janitor.Start()
	}

	httpServer := httpapi.New(cfg.HTTPAddr, pool, sched, logging.With(log, map[string]any{"component": "httpapi"}))
	httpServer.Start()
	log.Infof("pollerd listening on %s", cfg.HTTPAddr)

	waitForShutdown(configStore.ShutdownGrace, sched, pool, chainCoord, lifecycleMgr, janitor, httpServer, log)
}

func waitForShutdown(
	grace time.Duration,
	sched *scheduler.Scheduler,
	pool *poller.Pool,
	chainCoord *chain.Coordinator,
	lifecycleMgr *lifecycle.Manager,
	janitor *store.Janitor,
	httpServer *httpapi.Server,
	log logging.Logger,
) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("shutdown requested, draining within %s", grace)
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	sched.Stop()
	if janitor != nil {
		janitor.Stop()
	}
	chainCoord.Stop()
	lifecycleMgr.Stop()
	pool.Shutdown(ctx, grace)
	if n, err := lifecycleMgr.InterruptRemaining(); err != nil {
		log.Errorf("interrupt remaining executions: %v", err)
	} else if n > 0 {
		log.Infof("marked %d in-flight executions INTERRUPTED(shutdown)", n)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("http server shutdown: %v", err)
	}
	log.Infof("shutdown complete")
}

// seedDemoData populates a small synthetic fleet so the daemon is
// runnable standalone for manual verification.
func seedDemoData(s *store.BoltStore, log logging.Logger) {
	olt := domain.OLT{
		ID:      "demo-olt-1",
		Enabled: true,
		Endpoint: domain.SNMPEndpoint{
			Host:      "127.0.0.1",
			Port:      161,
			Community: "public",
			Version:   "2c",
		},
	}
	if err := s.SaveOLT(olt); err != nil {
		log.Errorf("seed demo OLT: %v", err)
		return
	}

	master := domain.NewJob(uuid.NewString(), olt.ID, domain.OperationDiscovery, 600, "1.3.6.1.2.1.1.1.0", "demo")
	master.NextRunAt = time.Now()
	if err := s.SaveJob(master); err != nil {
		log.Errorf("seed demo master job: %v", err)
		return
	}

	chainJob := domain.NewJob(uuid.NewString(), olt.ID, domain.OperationWalk, 600, "1.3.6.1.2.1.2.2", "demo")
	parentID := master.ID
	chainJob.ParentJobID = &parentID
	chainJob.ChainPosition = 0
	if err := s.SaveJob(chainJob); err != nil {
		log.Errorf("seed demo chain job: %v", err)
		return
	}

	log.Infof("seeded demo OLT %s with master job %s and chain job %s", olt.ID, master.ID, chainJob.ID)
}
