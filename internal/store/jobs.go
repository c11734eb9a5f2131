package store

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/oltfleet/pollerd/internal/domain"
)

// ListEnabledDue returns all enabled jobs whose next_run_at <= now.
// Whether the owning OLT is enabled is checked by the caller (the
// scheduler), since that requires joining against the OLT store.
func (s *BoltStore) ListEnabledDue(now time.Time) ([]domain.Job, error) {
	var out []domain.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketJobs))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var job domain.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return errors.Wrap(err, "unmarshal job")
			}
			if job.Enabled && !job.NextRunAt.After(now) {
				out = append(out, job)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// ListAll returns every job, used by burst smoothing to scan the next hour.
func (s *BoltStore) ListAll() ([]domain.Job, error) {
	var out []domain.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketJobs))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var job domain.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return errors.Wrap(err, "unmarshal job")
			}
			out = append(out, job)
		}
		return nil
	})
	return out, err
}

// GetJob returns a single job by ID.
func (s *BoltStore) GetJob(id string) (domain.Job, error) {
	var job domain.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketJobs))
		val := b.Get([]byte(id))
		if val == nil {
			return ErrNotFound
		}
		return errors.Wrap(json.Unmarshal(val, &job), "unmarshal job")
	})
	return job, err
}

// SaveJob inserts or updates a job.
func (s *BoltStore) SaveJob(job domain.Job) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketJobs))
		encoded, err := json.Marshal(job)
		if err != nil {
			return errors.Wrap(err, "marshal job")
		}
		return errors.Wrap(b.Put([]byte(job.ID), encoded), "put job")
	})
}

// UpdateNextRunAt rewrites only a job's next_run_at. The scheduler is
// the sole writer of this field.
func (s *BoltStore) UpdateNextRunAt(jobID string, ts time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketJobs))
		val := b.Get([]byte(jobID))
		if val == nil {
			return ErrNotFound
		}
		var job domain.Job
		if err := json.Unmarshal(val, &job); err != nil {
			return errors.Wrap(err, "unmarshal job")
		}
		job.NextRunAt = ts
		encoded, err := json.Marshal(job)
		if err != nil {
			return errors.Wrap(err, "marshal job")
		}
		return errors.Wrap(b.Put([]byte(jobID), encoded), "put job")
	})
}

// GetChain returns chain jobs whose ParentJobID == parentJobID, ordered by
// ChainPosition.
func (s *BoltStore) GetChain(parentJobID string) ([]domain.Job, error) {
	var out []domain.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketJobs))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var job domain.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return errors.Wrap(err, "unmarshal job")
			}
			if job.ParentJobID != nil && *job.ParentJobID == parentJobID {
				out = append(out, job)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ChainPosition < out[j].ChainPosition })
	return out, err
}
