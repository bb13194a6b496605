// Package electionstate persists the one value the relationship manager
// (pkg/relationship) needs to survive a tracker restart: the unix time of
// its last relationship check, so that spec.md §4.3 step 1's
// `restartInterval = processStart − lastKnownCheckTime` is meaningful
// across restarts rather than resetting to "just started" every time.
//
// Backed by a single-bucket boltdb database, the way the teacher backs
// the overlay node cache with storage/boltdb in cache_test.go.
package electionstate

import (
	"time"

	"github.com/boltdb/bolt"
	"github.com/zeebo/errs"
)

// Error is the error class for the electionstate package.
var Error = errs.Class("electionstate")

var bucketName = []byte("election")
var lastCheckKey = []byte("last_known_check_time")

// Store is a tiny boltdb-backed key/value store for election bookkeeping.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the boltdb file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, Error.Wrap(err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying boltdb handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastKnownCheckTime returns the last persisted check time, or the zero
// time if none has ever been recorded (fresh tracker).
func (s *Store) LastKnownCheckTime() (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(lastCheckKey)
		if v == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return err
		}
		t = parsed
		return nil
	})
	if err != nil {
		return time.Time{}, Error.Wrap(err)
	}
	return t, nil
}

// SetLastKnownCheckTime persists t as the last relationship check time.
func (s *Store) SetLastKnownCheckTime(t time.Time) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(lastCheckKey, []byte(t.Format(time.RFC3339Nano)))
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}
