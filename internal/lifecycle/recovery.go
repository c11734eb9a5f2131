package lifecycle

import (
	"github.com/oltfleet/pollerd/internal/domain"
	"github.com/oltfleet/pollerd/internal/store"
)

// Recover marks every execution left in PENDING or RUNNING by a previous
// process as INTERRUPTED with error_kind=process_restart. It must run
// once, before the scheduler's first tick and before the pool accepts any
// submission, so that no non-terminal execution exists that isn't owned
// by a live slot.
func (m *Manager) Recover() (recovered int, err error) {
	return m.sweepNonTerminal(domain.ErrorProcessRestart)
}

// InterruptRemaining marks every execution still in PENDING or RUNNING as
// INTERRUPTED with error_kind=shutdown. Called once during graceful
// shutdown, after the pool's grace window has elapsed, so the stored state
// reflects reality before the process exits.
func (m *Manager) InterruptRemaining() (interrupted int, err error) {
	return m.sweepNonTerminal(domain.ErrorShutdown)
}

func (m *Manager) sweepNonTerminal(kind domain.ErrorKind) (int, error) {
	rows, err := m.execs.ListNonTerminal()
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()
	swept := 0
	for _, exec := range rows {
		fields := store.TransitionFields{
			FinishedAt: &now,
			ErrorKind:  kind,
		}
		if err := m.execs.Transition(exec.ID, exec.State, domain.StateInterrupted, fields); err != nil {
			m.log.Errorf("lifecycle: transition execution %s to INTERRUPTED(%s): %v", exec.ID, kind, err)
			continue
		}
		swept++
	}
	return swept, nil
}
