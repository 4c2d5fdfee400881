// Package bbolt provides a BBolt-backed event log.
package bbolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/steamrelay/storage"
	"go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

// Store implements storage.EventLog backed by a BBolt database. Keys are the
// bucket sequence number, so cursor order is append order.
type Store struct {
	db *bbolt.DB
}

var _ storage.EventLog = (*Store)(nil)

// NewEventLog returns an EventLog backed by the given BBolt database. A
// read-only database yields a Store that can only List.
func NewEventLog(db *bbolt.DB) (*Store, error) {
	if db.IsReadOnly() {
		return &Store{db: db}, nil
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating events bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewEventLogFromFile opens a BBolt database at the given path and returns a new EventLog.
func NewEventLogFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewEventLog(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(event storage.Event) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], data)
	})
}

func (s *Store) List(limit, offset int) ([]storage.Event, int, error) {
	var (
		events []storage.Event
		total  int
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		if b == nil {
			return nil
		}
		total = b.Stats().KeyN
		c := b.Cursor()
		skipped := 0
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			var e storage.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding event %x: %w", k, err)
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
