// Package bbolt provides a BBolt-backed storage.KeyStore.
//
// Every Put and Remove runs in its own read-write transaction. By default the
// database is opened with NoSync, so a committed transaction reaches the file
// through the OS page cache but is not fdatasync'ed. One session mutation
// issues two writes (session record and user index); paying an fsync for each
// would dominate request latency. The cost is that a machine crash can lose
// the most recent writes. Pass Options.Fsync to sync on every commit.
package bbolt

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sks/storage"
)

// BucketName is the single bucket holding all keys.
const BucketName = "sessionKeyStore"

// Options configures how the database file is opened.
type Options struct {
	// Fsync forces an fdatasync on every commit.
	Fsync bool
	// Timeout bounds the wait for the file lock held by another process.
	Timeout time.Duration
}

// Store implements storage.KeyStore backed by a BBolt database.
type Store struct {
	db     *bbolt.DB
	bucket []byte
}

var _ storage.KeyStore = (*Store)(nil)

// New returns a Store over an already opened database, creating the bucket
// if needed.
func New(db *bbolt.DB) (*Store, error) {
	s := &Store{db: db, bucket: []byte(BucketName)}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		return nil, storage.Fault("open", "", fmt.Errorf("creating bucket: %w", err))
	}
	return s, nil
}

// Open opens (or creates) the BBolt database at path and returns a Store.
func Open(path string, opts Options) (*Store, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: opts.Timeout,
		NoSync:  !opts.Fsync,
	})
	if err != nil {
		return nil, storage.Fault("open", "", fmt.Errorf("opening bbolt db %s: %w", path, err))
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		// data is only valid for the life of the transaction.
		value, found = string(data), true
		return nil
	})
	if err != nil {
		return "", storage.Fault("get", key, err)
	}
	if !found {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) Put(_ context.Context, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	return storage.Fault("put", key, err)
}

func (s *Store) Remove(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	return storage.Fault("remove", key, err)
}

// Sync flushes pending writes to stable storage.
func (s *Store) Sync() error {
	return storage.Fault("sync", "", s.db.Sync())
}

// Close flushes and closes the underlying BBolt database.
func (s *Store) Close() error {
	if s.db.NoSync {
		// Best effort: a closed or read-only db reports its own error below.
		_ = s.db.Sync()
	}
	return storage.Fault("close", "", s.db.Close())
}
