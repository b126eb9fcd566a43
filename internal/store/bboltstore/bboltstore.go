// Package bboltstore implements store.PartitionedStore over go.etcd.io/bbolt.
// A bbolt bucket is a partition; bbolt's own single-writer transaction model
// gives Put/Delete the atomicity spec.md §1 requires, and Bucket.ForEach
// already visits keys in ascending byte order, which is exactly the
// iteration order spec.md §4.3 recovery depends on.
package bboltstore

import (
	"os"

	"go.etcd.io/bbolt"

	"bloomkeep/bloomerr"
	"bloomkeep/internal/store"
)

// Store is a bbolt-backed store.PartitionedStore.
type Store struct {
	db *bbolt.DB
}

var _ store.PartitionedStore = (*Store)(nil)

// Open opens (creating if necessary) a bbolt database at path. If mode is
// zero, 0600 is used — a reasonable default for a single-writer
// persistence file.
func Open(path string, mode os.FileMode) (*Store, error) {
	if mode == 0 {
		mode = 0o600
	}
	db, err := bbolt.Open(path, mode, nil)
	if err != nil {
		return nil, bloomerr.Storagef(err, false, "open bbolt database %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(partition string, key, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(partition))
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
	if err != nil {
		return bloomerr.Storagef(err, true, "put partition=%s", partition)
	}
	return nil
}

func (s *Store) Get(partition string, key []byte) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(partition))
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		found = true
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, false, bloomerr.Storagef(err, true, "get partition=%s", partition)
	}
	return value, found, nil
}

func (s *Store) Delete(partition string, key []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(partition))
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
	if err != nil {
		return bloomerr.Storagef(err, true, "delete partition=%s", partition)
	}
	return nil
}

func (s *Store) DeleteAll(partition string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(partition))
		if err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return bloomerr.Storagef(err, true, "delete all partition=%s", partition)
	}
	return nil
}

func (s *Store) ForEach(partition string, fn func(key, value []byte) error) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(partition))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(k, v)
		})
	})
	if err != nil {
		return bloomerr.Storagef(err, true, "iterate partition=%s", partition)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return bloomerr.Storagef(err, false, "close bbolt database")
	}
	return nil
}
