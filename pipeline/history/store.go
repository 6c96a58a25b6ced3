// Package history records training runs in a local bbolt database so that
// past selections can be listed and inspected.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/mlops-project/trainer/pkg/errors"
)

const (
	runsBucket = "runs" // start-time ordered run records
	idsBucket  = "ids"  // run id -> key in runsBucket
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one InitiateModelTrainer invocation.
type Run struct {
	ID           string             `json:"id"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Status       string             `json:"status"`
	BestModel    string             `json:"best_model,omitempty"`
	BestScore    float64            `json:"best_score"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	ArtifactPath string             `json:"artifact_path,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Store persists runs. It is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create history directory %s", dir)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open history database %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, idsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "create %s bucket", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func runKey(r *Run) []byte {
	// zero padding keeps byte order equal to start-time order
	return []byte(fmt.Sprintf("%020d_%s", r.StartedAt.UnixNano(), r.ID))
}

// Record stores r. A missing ID is generated and written back to r.
func (s *Store) Record(r *Run) error {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return errors.NewValidationError("id", "must be a UUID", r.ID)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}
	key := runKey(r)

	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket([]byte(idsBucket))
		if old := ids.Get([]byte(r.ID)); old != nil {
			if err := tx.Bucket([]byte(runsBucket)).Delete(old); err != nil {
				return err
			}
		}
		if err := tx.Bucket([]byte(runsBucket)).Put(key, data); err != nil {
			return errors.Wrap(err, "put run")
		}
		return ids.Put([]byte(r.ID), key)
	})
}

// List returns up to limit runs, most recent first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrapf(err, "decode run %s", k)
			}
			runs = append(runs, r)
			if limit > 0 && len(runs) >= limit {
				break
			}
		}
		return nil
	})
	return runs, err
}

// ErrRunNotFound is returned by Get for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Get returns the run with the given id.
func (s *Store) Get(id string) (*Run, error) {
	var r Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(idsBucket)).Get([]byte(id))
		if key == nil {
			return errors.Wrapf(ErrRunNotFound, "id %s", id)
		}
		data := tx.Bucket([]byte(runsBucket)).Get(key)
		if data == nil {
			return errors.Wrapf(ErrRunNotFound, "id %s", id)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}
