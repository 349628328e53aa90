// Package storage provides persistent storage for the revenue forecaster.
// It uses BoltDB for the imported transaction records and offers two
// ArtifactStore implementations for the trained model artifact: a plain file
// replaced atomically by rename, and a bucket inside the same BoltDB file.
//
// Record keys sort by transaction date, so a cursor walk returns records in
// chronological order without a separate index.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"revenue-forecaster/internal/records"

	"go.etcd.io/bbolt"
)

const (
	dbFile             = "forecaster.db"
	transactionsBucket = "transactions" // Bucket name for normalized transaction records
	artifactsBucket    = "artifacts"    // Bucket name for trained artifacts keyed by location
	keyDateLayout      = "20060102"
)

// Store provides persistent storage for transaction records using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and makes sure the
// buckets exist.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(transactionsBucket)); err != nil {
			return fmt.Errorf("create transactions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket)); err != nil {
			return fmt.Errorf("create artifacts bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// StoreRecords appends recs in a single transaction. Records are validated
// first; an invalid set writes nothing.
func (s *Store) StoreRecords(ctx context.Context, recs []records.RawRecord) error {
	if err := records.Validate(recs); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRecords(ctx, tx.Bucket([]byte(transactionsBucket)), recs)
	})
}

// ReplaceRecords swaps the stored record set for recs in one transaction.
func (s *Store) ReplaceRecords(ctx context.Context, recs []records.RawRecord) error {
	if err := records.Validate(recs); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(transactionsBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("drop transactions bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(transactionsBucket))
		if err != nil {
			return fmt.Errorf("create transactions bucket: %w", err)
		}
		return putRecords(ctx, b, recs)
	})
}

func putRecords(ctx context.Context, b *bbolt.Bucket, recs []records.RawRecord) error {
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		if err := b.Put(recordKey(r.Date, seq), data); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
	}
	return nil
}

// recordKey orders by calendar date, then by insertion within a date.
func recordKey(date time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%012d", date.UTC().Format(keyDateLayout), seq))
}

// GetRecords returns records dated within [start, end] by calendar day, in
// date order.
func (s *Store) GetRecords(start, end time.Time) ([]records.RawRecord, error) {
	startKey := []byte(start.UTC().Format(keyDateLayout))
	endKey := []byte(end.UTC().Format(keyDateLayout) + "_~")
	return s.scan(startKey, endKey)
}

// All returns every stored record in date order.
func (s *Store) All() ([]records.RawRecord, error) {
	return s.scan(nil, nil)
}

func (s *Store) scan(startKey, endKey []byte) ([]records.RawRecord, error) {
	var out []records.RawRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(transactionsBucket)).Cursor()

		k, v := c.First()
		if startKey != nil {
			k, v = c.Seek(startKey)
		}
		for ; k != nil; k, v = c.Next() {
			if endKey != nil && bytes.Compare(k, endKey) > 0 {
				break
			}

			var r records.RawRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			out = append(out, r)
		}
		return nil
	})

	return out, err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(transactionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// RecordSource exposes the stored records as a records.Source.
type RecordSource struct {
	store *Store
}

func NewRecordSource(store *Store) *RecordSource {
	return &RecordSource{store: store}
}

func (s *RecordSource) Load(ctx context.Context) ([]records.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.All()
}
