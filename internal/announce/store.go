package announce

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
)

// Store persists the scheduled message collection. Save replaces whatever
// was stored before; Load returns messages in the order they were saved.
type Store interface {
	Load(ctx context.Context) ([]Message, error)
	Save(ctx context.Context, msgs []Message) error
	Close() error
}

// PersistenceError wraps a failed load or save.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Backend names a Store implementation.
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// OpenStore opens the store selected by cfg.
func OpenStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Path), nil
	case BackendLevelDB:
		return NewLevelStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown schedule backend %q", cfg.Backend)
	}
}

// FileStore keeps the collection in a single versioned file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. A missing file is an empty collection.
func (s *FileStore) Load(ctx context.Context) ([]Message, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(data))
}

// Save writes to a temporary file beside the target and renames it over
// the target, so readers never see a half-written file.
func (s *FileStore) Save(ctx context.Context, msgs []Message) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, msgs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Close() error {
	return nil
}

var schedulePrefix = ds.NewKey("/v1/schedule")

// LevelStore keeps one record per key in a LevelDB datastore.
type LevelStore struct {
	db *dslvl.Datastore
}

// NewLevelStore opens (or creates) the datastore directory at path.
func NewLevelStore(path string) (*LevelStore, error) {
	db, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db}, nil
}

func recordKey(i int) ds.Key {
	return schedulePrefix.ChildString(fmt.Sprintf("%08d", i))
}

// Load returns the stored records in key order.
func (s *LevelStore) Load(ctx context.Context) ([]Message, error) {
	res, err := s.db.Query(ctx, dsq.Query{Prefix: schedulePrefix.String()})
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		m, err := DecodeRecord(e.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Save deletes every stored record and writes msgs in one batch.
func (s *LevelStore) Save(ctx context.Context, msgs []Message) error {
	res, err := s.db.Query(ctx, dsq.Query{Prefix: schedulePrefix.String(), KeysOnly: true})
	if err != nil {
		return err
	}
	old, err := res.Rest()
	if err != nil {
		return err
	}

	batch, err := s.db.Batch(ctx)
	if err != nil {
		return err
	}
	for _, e := range old {
		if err := batch.Delete(ctx, ds.NewKey(e.Key)); err != nil {
			return err
		}
	}
	for i, m := range msgs {
		body, err := EncodeRecord(m)
		if err != nil {
			return err
		}
		if err := batch.Put(ctx, recordKey(i), body); err != nil {
			return err
		}
	}
	return batch.Commit(ctx)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
