package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps keys in a Pebble directory under a fixed prefix.
type PebbleStore struct {
	db *pebble.DB
}

const pebblePrefix = "state:"

// OpenPebble opens (creating if needed) the Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("repository: pebble dir must not be empty")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("repository: OpenPebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(_ context.Context, key string) (string, bool, error) {
	v, closer, err := s.db.Get([]byte(pebblePrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("repository: Load: %w", err)
	}
	defer func() { _ = closer.Close() }()
	return string(v), true, nil
}

func (s *PebbleStore) Save(_ context.Context, key, value string) error {
	if err := s.db.Set([]byte(pebblePrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

func (s *PebbleStore) Remove(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(pebblePrefix+key), pebble.Sync); err != nil {
		return fmt.Errorf("repository: Remove: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
