package store

import (
	"encoding/json"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/oltfleet/pollerd/internal/domain"
)

// GetOLT returns a single OLT by ID.
func (s *BoltStore) GetOLT(id string) (domain.OLT, error) {
	var olt domain.OLT
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketOLTs))
		val := b.Get([]byte(id))
		if val == nil {
			return ErrNotFound
		}
		return errors.Wrap(json.Unmarshal(val, &olt), "unmarshal olt")
	})
	return olt, err
}

// SaveOLT inserts or updates an OLT record.
func (s *BoltStore) SaveOLT(olt domain.OLT) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketOLTs))
		encoded, err := json.Marshal(olt)
		if err != nil {
			return errors.Wrap(err, "marshal olt")
		}
		return errors.Wrap(b.Put([]byte(olt.ID), encoded), "put olt")
	})
}

// ListOLTs returns every OLT.
func (s *BoltStore) ListOLTs() ([]domain.OLT, error) {
	var out []domain.OLT
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketOLTs))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var olt domain.OLT
			if err := json.Unmarshal(v, &olt); err != nil {
				return errors.Wrap(err, "unmarshal olt")
			}
			out = append(out, olt)
		}
		return nil
	})
	return out, err
}

// ResetFailureCount zeroes consecutive_failure_count on SUCCESS.
func (s *BoltStore) ResetFailureCount(oltID string) error {
	return s.mutateOLT(oltID, func(o *domain.OLT) { o.ConsecutiveFailureCount = 0 })
}

// IncrementFailureCount increments consecutive_failure_count on exhausted
// retries. This never disables the OLT; only the counter is maintained,
// operators read it via the observability surface.
func (s *BoltStore) IncrementFailureCount(oltID string) error {
	return s.mutateOLT(oltID, func(o *domain.OLT) { o.ConsecutiveFailureCount++ })
}

func (s *BoltStore) mutateOLT(oltID string, mutate func(*domain.OLT)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketOLTs))
		val := b.Get([]byte(oltID))
		if val == nil {
			return ErrNotFound
		}
		var olt domain.OLT
		if err := json.Unmarshal(val, &olt); err != nil {
			return errors.Wrap(err, "unmarshal olt")
		}
		mutate(&olt)
		encoded, err := json.Marshal(olt)
		if err != nil {
			return errors.Wrap(err, "marshal olt")
		}
		return errors.Wrap(b.Put([]byte(oltID), encoded), "put olt")
	})
}
