// Package store implements the execution record store and the job/OLT
// store on top of bbolt. Execution state changes go through a
// compare-and-swap Transition so concurrent writers can never clobber a
// state they did not observe.
package store

import (
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	bucketExecutions = "executions"
	bucketJobs       = "jobs"
	bucketOLTs       = "olts"
)

// ErrConflict is returned by Transition when the stored state does not
// match the expected "from" state, i.e. the compare-and-swap guard failed.
var ErrConflict = errors.New("execution state transition conflict")

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("not found")

// BoltStore is the bbolt-backed implementation of ExecutionStore, JobStore,
// and OLTStore.
type BoltStore struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a BoltDB file at path and initializes
// the buckets the store needs.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open BoltDB at %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketExecutions, bucketJobs, bucketOLTs} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "create %s bucket", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize BoltDB buckets")
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
