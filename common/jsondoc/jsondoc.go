// Package jsondoc reads and writes JSON documents on a shared filesystem such
// that a reader never observes a partially written file and two writers never
// destructively interleave a read-modify-write sequence. Writes go through a
// temp file in the target directory followed by an atomic rename; reads and
// writes serialize on the advisory lock derived from the target path.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/imageforge/imageforge-go/common/lockfile"
)

var (
	// ErrNotExist distinguishes "no document yet" from an unreadable one.
	ErrNotExist = errors.New("json document does not exist")
	// ErrBadDocument marks a document that exists but does not parse.
	ErrBadDocument = errors.New("json document is not valid JSON")
)

// MergeFunc reconciles the document currently on disk with the document the
// caller wants to persist. The returned document is what actually gets written.
type MergeFunc func(disk, mem map[string]any) (map[string]any, error)

// Store binds a filesystem and a locker. The zero-value pairing for production
// is the OS filesystem with flock-based locking; tests typically pair
// afero.NewMemMapFs with lockfile.NewMapLocker.
type Store struct {
	fs     afero.Fs
	locker lockfile.Locker
}

func New(fsys afero.Fs, locker lockfile.Locker) *Store {
	return &Store{fs: fsys, locker: locker}
}

// Default returns a Store backed by the OS filesystem and flock(2).
func Default() *Store {
	return New(afero.NewOsFs(), lockfile.FileLocker{})
}

// Fs exposes the backing filesystem for callers that need to stat or list
// files governed by the same store.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

type loadOptions struct {
	withoutLock bool
}

type LoadOption func(*loadOptions)

// WithoutLock skips lock acquisition for callers that already hold the lock
// covering the document.
func WithoutLock() LoadOption {
	return func(o *loadOptions) { o.withoutLock = true }
}

// Load reads the JSON document at path into v under the path's lock. Numbers
// decoded into untyped fields are kept as json.Number so large integer values
// (notably nanosecond stamps) survive round-trips undamaged.
func (s *Store) Load(path string, v any, opts ...LoadOption) error {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.withoutLock {
		release, err := s.locker.Lock(lockfile.LockPath(path))
		if err != nil {
			return err
		}
		defer release()
	}
	return s.loadLocked(path, v)
}

// LoadMap is Load for callers wanting the raw document.
func (s *Store) LoadMap(path string, opts ...LoadOption) (map[string]any, error) {
	doc := map[string]any{}
	if err := s.Load(path, &doc, opts...); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) loadLocked(path string, v any) error {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadDocument, path, err)
	}
	return nil
}

// Save atomically persists v as JSON at path under the path's lock.
func (s *Store) Save(path string, v any) error {
	release, err := s.locker.Lock(lockfile.LockPath(path))
	if err != nil {
		return err
	}
	defer release()
	return s.saveLocked(path, v)
}

// SaveMerged persists doc at path, reconciling it with whatever is currently
// on disk via merge. The re-read, merge, and rename all happen under a single
// lock acquisition, which closes the race between checking the disk copy and
// replacing it. A document that does not exist yet merges against an empty
// base. The persisted document is returned.
func (s *Store) SaveMerged(path string, doc map[string]any, merge MergeFunc) (map[string]any, error) {
	release, err := s.locker.Lock(lockfile.LockPath(path))
	if err != nil {
		return nil, err
	}
	defer release()

	disk := map[string]any{}
	if err := s.loadLocked(path, &disk); err != nil && !errors.Is(err, ErrNotExist) {
		return nil, err
	}
	merged, err := merge(disk, doc)
	if err != nil {
		return nil, err
	}
	if err := s.saveLocked(path, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) saveLocked(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	// Temp file lives in the target directory to guarantee the rename stays
	// on one filesystem and therefore stays atomic.
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp."+uuid.NewString())
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("renaming %s over %s: %w", tmp, path, err)
	}
	return nil
}
