package session

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelStore persists session state in a LevelDB database so a login
// survives restarts of the process.
type LevelStore struct {
	db     *leveldb.DB
	logger zerolog.Logger
}

// OpenLevelStore opens (or creates) the database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open session store %s: %w", path, err)
	}
	return &LevelStore{db: db, logger: zerolog.Nop()}, nil
}

// OpenMemLevelStore opens a LevelDB instance backed by memory storage.
func OpenMemLevelStore() (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory session store: %w", err)
	}
	return &LevelStore{db: db, logger: zerolog.Nop()}, nil
}

// WithLogger sets the logger that reports read failures.
func (s *LevelStore) WithLogger(logger zerolog.Logger) *LevelStore {
	s.logger = logger
	return s
}

// Get reports a missing key as absent. Other read failures are logged and
// also read as absent, which sends the user back to the login page.
func (s *LevelStore) Get(key string) (string, bool) {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if !errors.Is(err, leveldb.ErrNotFound) {
			s.logger.Error().Err(err).Str("key", key).Msg("session store read failed")
		}
		return "", false
	}
	return string(v), true
}

func (s *LevelStore) Put(key, value string) error {
	return s.db.Put([]byte(key), []byte(value), nil)
}

func (s *LevelStore) Delete(key string) error {
	err := s.db.Delete([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	return err
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
