package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/util"
)

// Options control a single Record call.
type Options struct {
	// DeleteDuplicates skips writing when an equivalent recording exists
	// and removes all but the newest equivalent file.
	DeleteDuplicates bool
	// MaxRecordings caps files per key; older files are pruned after a
	// write. Zero or negative means unlimited.
	MaxRecordings int
}

// DefaultOptions returns the recorder defaults.
func DefaultOptions() Options {
	return Options{DeleteDuplicates: true, MaxRecordings: -1}
}

// RecordResult describes the outcome of Store.Record.
type RecordResult struct {
	// Path of the written file, or of the kept duplicate.
	Path      string
	Duplicate bool
	Removed   []string
}

// dirLocks serializes work per recording directory.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]*sync.Mutex)}
}

func (d *dirLocks) lock(dir string) func() {
	d.mu.Lock()
	m, ok := d.locks[dir]
	if !ok {
		m = &sync.Mutex{}
		d.locks[dir] = m
	}
	d.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Store reads and writes recordings below a single folder.
type Store struct {
	root  string
	locks *dirLocks
	log   *slog.Logger
	now   func() time.Time
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, log *slog.Logger) *Store {
	return newStore(dir, newDirLocks(), log)
}

func newStore(dir string, locks *dirLocks, log *slog.Logger) *Store {
	return &Store{root: dir, locks: locks, log: logging.OrNop(log), now: time.Now}
}

// Root returns the folder directory.
func (s *Store) Root() string { return s.root }

// Record persists c. With DeleteDuplicates, an equivalent recording already
// on disk suppresses the write and older equivalents are removed.
func (s *Store) Record(c Capture, opts Options) (*RecordResult, error) {
	path, hasQuery, err := location(c.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	dir, ok := util.SafeJoin(s.root, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	key := Key{Method: c.Method, HasQuery: hasQuery, HasBody: len(c.RequestBody) > 0}
	rec := c.Recording()

	unlock := s.locks.lock(dir)
	defer unlock()

	if opts.DeleteDuplicates {
		if res := s.dedupe(dir, key, rec); res != nil {
			return res, nil
		}
	}

	data, err := marshalRecording(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recording: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storageErr("mkdir", dir, err)
	}

	at := c.Time
	if at.IsZero() {
		at = s.now()
	}
	file := s.freeName(dir, key.Prefix()+Timestamp(at))
	if err := writeAtomic(file, data); err != nil {
		return nil, storageErr("write", file, err)
	}
	s.log.Debug("recorded", "method", rec.HTTPMethod, "uri", rec.URI, "file", file)

	res := &RecordResult{Path: file}
	if opts.MaxRecordings > 0 {
		res.Removed = s.prune(dir, key, opts.MaxRecordings)
	}
	return res, nil
}

// Find returns the newest recording for method and uri. Without a query
// the newest file of the key wins; with a query the stored uri must match
// exactly.
func (s *Store) Find(method, uri string, hasBody bool) (*Recording, error) {
	path, hasQuery, err := location(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	dir, ok := util.SafeJoin(s.root, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	key := Key{Method: method, HasQuery: hasQuery, HasBody: hasBody}

	unlock := s.locks.lock(dir)
	defer unlock()

	names := s.list(dir, key)
	for i := len(names) - 1; i >= 0; i-- {
		rec, err := s.read(filepath.Join(dir, names[i]))
		if err != nil {
			continue
		}
		if !hasQuery || rec.URI == uri {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// dedupe removes all but the newest recording equivalent to rec and
// returns a result when one was found.
func (s *Store) dedupe(dir string, key Key, rec *Recording) *RecordResult {
	var dups []string
	for _, name := range s.list(dir, key) {
		existing, err := s.read(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if existing.Equivalent(rec) {
			dups = append(dups, name)
		}
	}
	if len(dups) == 0 {
		return nil
	}

	res := &RecordResult{Path: filepath.Join(dir, dups[len(dups)-1]), Duplicate: true}
	for _, name := range dups[:len(dups)-1] {
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil {
			s.log.Warn("failed to delete duplicate recording", "file", p, "error", err)
			continue
		}
		res.Removed = append(res.Removed, p)
	}
	s.log.Debug("duplicate recording skipped", "kept", res.Path, "removed", len(res.Removed))
	return res
}

func (s *Store) prune(dir string, key Key, limit int) []string {
	names := s.list(dir, key)
	if len(names) <= limit {
		return nil
	}
	var removed []string
	for _, name := range names[:len(names)-limit] {
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil {
			s.log.Warn("failed to prune recording", "file", p, "error", err)
			continue
		}
		removed = append(removed, p)
	}
	return removed
}

// list returns the file names of key in dir, oldest first.
func (s *Store) list(dir string, key Key) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to list recordings", "dir", dir, "error", err)
		}
		return nil
	}
	prefix := key.Prefix()
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (s *Store) read(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("failed to read recording", "file", path, "error", err)
		return nil, storageErr("read", path, err)
	}
	rec, err := unmarshalRecording(data)
	if err != nil {
		s.log.Warn("failed to parse recording", "file", path, "error", err)
		return nil, storageErr("parse", path, err)
	}
	return rec, nil
}

// freeName returns dir/base.json, suffixed with _N when taken. The suffix
// keeps name order equal to capture order.
func (s *Store) freeName(dir, base string) string {
	p := filepath.Join(dir, base+".json")
	for n := 1; fileExists(p); n++ {
		p = filepath.Join(dir, fmt.Sprintf("%s_%03d.json", base, n))
	}
	return p
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
