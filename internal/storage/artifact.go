package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"revenue-forecaster/internal/ml"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var (
	// ErrNotFound is returned when a location holds no artifact.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorruptArtifact is returned when a stored artifact cannot be decoded
	// or fails validation. It is not retryable.
	ErrCorruptArtifact = errors.New("corrupt artifact")
)

// ArtifactStore persists exactly one current artifact per location. Save
// replaces the previous artifact atomically; readers see the old or the new
// one, never a mix.
type ArtifactStore interface {
	Save(ctx context.Context, artifact *ml.Artifact, location string) error
	Load(ctx context.Context, location string) (*ml.Artifact, error)
}

func encodeArtifact(artifact *ml.Artifact) ([]byte, error) {
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return data, nil
}

func decodeArtifact(data []byte, location string) (*ml.Artifact, error) {
	var artifact ml.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, location, err)
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, location, err)
	}
	return &artifact, nil
}

// FileArtifactStore keeps each artifact as a JSON file at the location path.
type FileArtifactStore struct{}

func NewFileArtifactStore() *FileArtifactStore {
	return &FileArtifactStore{}
}

// Save writes to a temporary file in the target directory, syncs it, and
// renames it over the location.
func (s *FileArtifactStore) Save(ctx context.Context, artifact *ml.Artifact, location string) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}

	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(location)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, location); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	tmpName = ""

	log.Info().
		Str("location", location).
		Str("selected", artifact.Selected).
		Int("bytes", len(data)).
		Msg("Artifact saved")
	return nil
}

func (s *FileArtifactStore) Load(ctx context.Context, location string) (*ml.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return decodeArtifact(data, location)
}

// BoltArtifactStore keeps artifacts in the artifacts bucket of a Store, keyed
// by location. Each save is a single transaction.
type BoltArtifactStore struct {
	store *Store
}

func NewBoltArtifactStore(store *Store) *BoltArtifactStore {
	return &BoltArtifactStore{store: store}
}

func (s *BoltArtifactStore) Save(ctx context.Context, artifact *ml.Artifact, location string) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).Put([]byte(location), data)
	})
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	log.Info().
		Str("location", location).
		Str("selected", artifact.Selected).
		Msg("Artifact saved to database")
	return nil
}

func (s *BoltArtifactStore) Load(ctx context.Context, location string) (*ml.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.store.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(artifactsBucket)).Get([]byte(location)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return decodeArtifact(data, location)
}
