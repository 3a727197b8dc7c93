package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	BucketRuns = "runs"
	// BucketFiles maps a result file name to the id of its latest run.
	BucketFiles = "files"
)

var ErrNotFound = errors.New("run not found")

type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath is ~/.quickbench/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".quickbench", "history.db"), nil
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create history directory")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketFiles} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init history buckets")
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores rec, assigning an id when it has none. Ids are time-ordered
// (UUIDv7) so the cursor walks runs chronologically.
func (s *Store) Save(rec *RunRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, "generate run id")
		}
		rec.ID = id.String()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode run")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(BucketRuns)).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		if rec.File == "" {
			return nil
		}
		return tx.Bucket([]byte(BucketFiles)).Put([]byte(filepath.Base(rec.File)), []byte(rec.ID))
	})
}

// List returns every run, newest first.
func (s *Store) List() ([]RunRecord, error) {
	var items []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item RunRecord
			if err := json.Unmarshal(v, &item); err != nil {
				return errors.Wrapf(err, "decode run %s", k)
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (*RunRecord, error) {
	var item RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "id %s", id)
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByFile returns the latest run that wrote the given result file.
func (s *Store) FindByFile(file string) (*RunRecord, error) {
	var id []byte
	s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(BucketFiles)).Get([]byte(filepath.Base(file))); v != nil {
			id = append(id, v...)
		}
		return nil
	})
	if id == nil {
		return nil, errors.Wrapf(ErrNotFound, "file %s", file)
	}
	return s.Get(string(id))
}
