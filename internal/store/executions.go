package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/oltfleet/pollerd/internal/domain"
)

// TransitionFields carries the optional fields a state transition may
// set: timestamps, error kind and detail, and the owning worker.
type TransitionFields struct {
	StartedAt    *time.Time
	FinishedAt   *time.Time
	DurationMS   *int64
	WorkerID     string
	ErrorKind    domain.ErrorKind
	ErrorDetail  string
	NonRetriable bool
}

// InsertExecution creates a new PENDING execution row and returns it with a
// generated ID.
func (s *BoltStore) InsertExecution(job domain.Job, scheduledAt time.Time, attemptNumber int, parentExecutionID *string) (domain.Execution, error) {
	exec := domain.Execution{
		ID:                uuid.NewString(),
		JobID:             job.ID,
		OLTID:             job.OLTID,
		OperationType:     job.OperationType,
		State:             domain.StatePending,
		AttemptNumber:     attemptNumber,
		ScheduledAt:       scheduledAt,
		ParentExecutionID: parentExecutionID,
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putExecution(tx, exec)
	})
	if err != nil {
		return domain.Execution{}, errors.Wrap(err, "insert execution")
	}
	return exec, nil
}

// Transition applies a compare-and-swap state change: it only succeeds if
// the stored execution is currently in `from`, and returns ErrConflict
// otherwise.
func (s *BoltStore) Transition(id string, from, to domain.ExecutionState, fields TransitionFields) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		exec, err := getExecution(tx, id)
		if err != nil {
			return err
		}
		if exec.State != from {
			return ErrConflict
		}
		exec.State = to
		if fields.StartedAt != nil {
			exec.StartedAt = *fields.StartedAt
		}
		if fields.FinishedAt != nil {
			exec.FinishedAt = *fields.FinishedAt
		}
		if fields.DurationMS != nil {
			exec.DurationMS = *fields.DurationMS
		}
		if fields.WorkerID != "" {
			exec.WorkerID = fields.WorkerID
		}
		if fields.ErrorKind != "" {
			exec.ErrorKind = fields.ErrorKind
		}
		if fields.ErrorDetail != "" {
			exec.ErrorDetail = fields.ErrorDetail
		}
		exec.NonRetriable = exec.NonRetriable || fields.NonRetriable
		return putExecution(tx, exec)
	})
}

// Get returns a single execution by ID.
func (s *BoltStore) Get(id string) (domain.Execution, error) {
	var exec domain.Execution
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		exec, err = getExecution(tx, id)
		return err
	})
	return exec, err
}

// CountTerminalSince counts terminal executions of a job with finished_at
// within [since, now]: the quota gate's rolling window query.
func (s *BoltStore) CountTerminalSince(jobID string, since time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketExecutions))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var exec domain.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return errors.Wrap(err, "unmarshal execution")
			}
			if exec.JobID != jobID || !exec.State.IsTerminal() {
				continue
			}
			if exec.FinishedAt.Before(since) {
				continue
			}
			count++
		}
		return nil
	})
	return count, err
}

// ExistsNonTerminal reports whether any execution for (oltID, opType) is in
// PENDING or RUNNING: the running-of-same-type gate.
func (s *BoltStore) ExistsNonTerminal(oltID string, opType domain.OperationType) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketExecutions))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var exec domain.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return errors.Wrap(err, "unmarshal execution")
			}
			if exec.OLTID == oltID && exec.OperationType == opType && !exec.State.IsTerminal() {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// ListNonTerminal returns every execution currently in PENDING or RUNNING,
// used only by startup recovery.
func (s *BoltStore) ListNonTerminal() ([]domain.Execution, error) {
	var out []domain.Execution
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketExecutions))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var exec domain.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return errors.Wrap(err, "unmarshal execution")
			}
			if !exec.State.IsTerminal() {
				out = append(out, exec)
			}
		}
		return nil
	})
	return out, err
}

// ListByParentExecution returns chain executions linked to a given parent
// execution.
func (s *BoltStore) ListByParentExecution(parentExecutionID string) ([]domain.Execution, error) {
	var out []domain.Execution
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketExecutions))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var exec domain.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return errors.Wrap(err, "unmarshal execution")
			}
			if exec.ParentExecutionID != nil && *exec.ParentExecutionID == parentExecutionID {
				out = append(out, exec)
			}
		}
		return nil
	})
	return out, err
}

// DeleteExecution removes an execution row outright. Used only by the
// scheduler to roll back a PENDING row whose submission the pool
// rejected, so the job stays due and is picked up again on a later tick.
func (s *BoltStore) DeleteExecution(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketExecutions))
		return errors.Wrap(b.Delete([]byte(id)), "delete execution")
	})
}

// PruneOlderThan deletes terminal executions with finished_at before cutoff.
// Run periodically by the maintenance janitor so the store doesn't grow
// unbounded; quota queries only ever need the last 3600s.
func (s *BoltStore) PruneOlderThan(cutoff time.Time) (int, error) {
	pruned := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketExecutions))
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var exec domain.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return errors.Wrap(err, "unmarshal execution")
			}
			if exec.State.IsTerminal() && exec.FinishedAt.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return errors.Wrap(err, "delete pruned execution")
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}

func putExecution(tx *bbolt.Tx, exec domain.Execution) error {
	b := tx.Bucket([]byte(bucketExecutions))
	encoded, err := json.Marshal(exec)
	if err != nil {
		return errors.Wrap(err, "marshal execution")
	}
	return errors.Wrap(b.Put([]byte(exec.ID), encoded), "put execution")
}

func getExecution(tx *bbolt.Tx, id string) (domain.Execution, error) {
	b := tx.Bucket([]byte(bucketExecutions))
	val := b.Get([]byte(id))
	if val == nil {
		return domain.Execution{}, ErrNotFound
	}
	var exec domain.Execution
	if err := json.Unmarshal(val, &exec); err != nil {
		return domain.Execution{}, errors.Wrap(err, "unmarshal execution")
	}
	return exec, nil
}
