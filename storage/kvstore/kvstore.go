// Package kvstore implements a key-value store.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akrylysov/pogreb"
	"github.com/fxamacker/cbor/v2"

	"github.com/oasisprotocol/custody/log"
)

// ErrNoSuchKey is returned by GetTyped when the key is absent.
var ErrNoSuchKey = errors.New("no such key")

// A key-value store. Typed accessors are provided below as functions taking
// KVStore as the first argument so they can use generics.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	// Iterate calls fn for every entry, in no particular order, until fn
	// returns an error.
	Iterate(fn func(key []byte, value []byte) error) error
	Count() uint32
	Close() error
}

type pogrebKVStore struct {
	db *pogreb.DB

	path   string
	logger *log.Logger
}

var _ KVStore = (*pogrebKVStore)(nil)

// Get implements KVStore.
func (s *pogrebKVStore) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

// Has implements KVStore.
func (s *pogrebKVStore) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

// Put implements KVStore.
func (s *pogrebKVStore) Put(key []byte, value []byte) error {
	return s.db.Put(key, value)
}

// Iterate implements KVStore.
func (s *pogrebKVStore) Iterate(fn func(key []byte, value []byte) error) error {
	it := s.db.Items()
	for {
		key, value, err := it.Next()
		switch {
		case errors.Is(err, pogreb.ErrIterationDone):
			return nil
		case err != nil:
			return fmt.Errorf("kvstore: iterate: %w", err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
}

// Count implements KVStore.
func (s *pogrebKVStore) Count() uint32 {
	return s.db.Count()
}

// Close implements KVStore.
func (s *pogrebKVStore) Close() error {
	s.logger.Info("closing KVStore", "path", s.path)
	return s.db.Close()
}

// Returns true if path exists. Uses simplified error handling
// to match pogreb's behavior.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Returns a list of files that match any of the patterns, but do not match any of the antipatterns.
func glob(patterns []string, antipatterns []string) ([]string, error) {
	files := map[string]struct{}{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			files[match] = struct{}{}
		}
	}
	for _, antipattern := range antipatterns {
		matches, err := filepath.Glob(antipattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			delete(files, match)
		}
	}
	filesArr := make([]string, 0, len(files))
	for k := range files {
		filesArr = append(filesArr, k)
	}
	return filesArr, nil
}

// Moves all files that match the src glob patterns to the destination directory.
func moveFiles(srcPatterns []string, srcAntipatterns []string, dst string) error {
	files, err := glob(srcPatterns, srcAntipatterns)
	if err != nil {
		return fmt.Errorf("unable to glob for files to move: %w", err)
	}
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return fmt.Errorf("unable to create destination directory %s: %w", dst, err)
	}
	for _, srcFile := range files {
		dstFile := filepath.Join(dst, filepath.Base(srcFile))
		if err := os.Rename(srcFile, dstFile); err != nil {
			return fmt.Errorf("unable to move file %s to %s: %w", srcFile, dstFile, err)
		}
	}
	return nil
}

// Deletes all files that match the glob pattern.
func deleteFiles(pattern string) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("unable to glob for files %s to delete: %w", pattern, err)
	}
	var lastErr error
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			lastErr = fmt.Errorf("unable to delete file %s: %w", f, err)
		}
	}
	return lastErr
}

// Backs up the index files pogreb is about to rebuild after an unclean
// shutdown, and removes repeatedly backed-up ones.
// Pogreb renames stale indexes to <name>.bac, then <name>.bac.bac and so on,
// which eventually exceeds filename limits on a crash-looping service.
func (s *pogrebKVStore) preBackup() {
	backupNeeded := pathExists(filepath.Join(s.path, "lock"))
	backupDir := filepath.Join(filepath.Dir(s.path), filepath.Base(s.path)+".backup")
	if backupNeeded {
		s.logger.Info("pogreb lock file found; preemptively backing up indexes", "path", s.path, "backup_path", backupDir)
		if !pathExists(backupDir) { // If an older backup exists, keep that one.
			err := moveFiles(
				[]string{filepath.Join(s.path, "*")},
				[]string{
					filepath.Join(s.path, "*.psg"), // the data that needs to be reindexed
					filepath.Join(s.path, "lock"),  // will trigger a reindex
				},
				backupDir,
			)
			if err != nil {
				s.logger.Warn("failed to move pogreb index files to backup directory", "err", err, "path", s.path, "backup_path", backupDir)
			}
		}
	}
	if err := deleteFiles(filepath.Join(s.path, "*.bac.bac")); err != nil {
		s.logger.Warn("failed to delete excessively backed-up pogreb index files", "err", err)
	}
}

// OpenKVStore initializes a new KVStore backed by a database at `path`, or
// opens an existing one. Every write is synced to disk before Put returns.
//
// Opening blocks until pogreb has finished any reindex it needs after an
// unclean shutdown; progress is logged every `slowOpenWarning`.
func OpenKVStore(logger *log.Logger, path string) (KVStore, error) {
	store := &pogrebKVStore{
		logger: logger,
		path:   path,
	}
	store.preBackup()

	type result struct {
		db  *pogreb.DB
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		logger.Info("(re)opening KVStore", "path", path)
		db, err := pogreb.Open(path, &pogreb.Options{BackgroundSyncInterval: -1})
		resCh <- result{db, err}
	}()

	ticker := time.NewTicker(slowOpenWarning)
	defer ticker.Stop()
	for {
		select {
		case res := <-resCh:
			if res.err != nil {
				logger.Error("failed to initialize pogreb store", "err", res.err)
				return nil, res.err
			}
			store.db = res.db
			logger.Info(fmt.Sprintf("KVStore has %d entries", res.db.Count()))
			return store, nil
		case <-ticker.C:
			logger.Warn("KVStore is still opening, likely reindexing after a crash", "path", path)
		}
	}
}

const slowOpenWarning = 30 * time.Second

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// GetTyped fetches the value of `key`, interpreted as a CBOR-encoded `Value`.
// Returns ErrNoSuchKey if the key is absent.
func GetTyped[Value any](store KVStore, key []byte, value *Value) error {
	raw, err := store.Get(key)
	if err != nil {
		return fmt.Errorf("failed to fetch key %x: %w", key, err)
	}
	if raw == nil {
		return ErrNoSuchKey
	}
	if err := cbor.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("failed to unmarshal the value for key %x into %T: %w; raw value was %x", key, value, err, raw)
	}
	return nil
}

// PutTyped stores `value` under `key` in deterministic CBOR encoding.
func PutTyped[Value any](store KVStore, key []byte, value *Value) error {
	raw, err := encMode.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", value, err)
	}
	return store.Put(key, raw)
}
