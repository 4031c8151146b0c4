package recording

import (
	"errors"
	"fmt"
	"io/fs"
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

// DefaultFolder is the folder recorded into and replayed from by default.
const DefaultFolder = "active"

// Library manages the recording folders below a root directory.
type Library struct {
	root  string
	locks *dirLocks
	log   *slog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewLibrary creates a library rooted at root.
func NewLibrary(root string, log *slog.Logger) *Library {
	return &Library{
		root:   root,
		locks:  newDirLocks(),
		log:    logging.OrNop(log),
		stores: make(map[string]*Store),
	}
}

// Root returns the library root directory.
func (l *Library) Root() string { return l.root }

// Folder returns the store for a folder. Stores share per-directory locks.
func (l *Library) Folder(name string) (*Store, error) {
	if err := checkFolder(name); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.stores[name]; ok {
		return s, nil
	}
	s := newStore(filepath.Join(l.root, name), l.locks, l.log.With("folder", name))
	l.stores[name] = s
	return s, nil
}

// FolderInfo summarizes a recording folder.
type FolderInfo struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
}

// Folders lists the folders of the library, sorted by name.
func (l *Library) Folders() ([]FolderInfo, error) {
	entries, err := os.ReadDir(l.root)
	if errors.Is(err, os.ErrNotExist) {
		return []FolderInfo{}, nil
	}
	if err != nil {
		return nil, storageErr("list", l.root, err)
	}
	out := []FolderInfo{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := l.Files(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, FolderInfo{Name: e.Name(), Files: len(files)})
	}
	return out, nil
}

// FileInfo describes a single recording file.
type FileInfo struct {
	// Path is relative to the folder, slash separated.
	Path     string    `json:"path"`
	Method   string    `json:"method"`
	HasQuery bool      `json:"hasQuery"`
	HasBody  bool      `json:"hasBody"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Files lists every recording file in folder, sorted by path.
func (l *Library) Files(folder string) ([]FileInfo, error) {
	if err := checkFolder(folder); err != nil {
		return nil, err
	}
	base := filepath.Join(l.root, folder)
	out := []FileInfo{}
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && p == base {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		fi := FileInfo{Path: filepath.ToSlash(rel), Size: info.Size(), Modified: info.ModTime()}
		if parts := strings.SplitN(d.Name(), "_", 4); len(parts) == 4 {
			fi.Method = parts[0]
			fi.HasQuery = parts[1] == "qp"
			fi.HasBody = parts[2] == "bp"
		}
		out = append(out, fi)
		return nil
	})
	if err != nil {
		return nil, storageErr("list", base, err)
	}
	slices.SortFunc(out, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Read loads one recording file by its folder-relative path.
func (l *Library) Read(folder, rel string) (*Recording, error) {
	if err := checkFolder(folder); err != nil {
		return nil, err
	}
	p, ok := util.SafeJoin(filepath.Join(l.root, folder), rel)
	if !ok || !strings.HasSuffix(p, ".json") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("read", p, err)
	}
	rec, err := unmarshalRecording(data)
	if err != nil {
		return nil, storageErr("parse", p, err)
	}
	return rec, nil
}

func checkFolder(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: folder %q", ErrInvalidPath, name)
	}
	return nil
}

// Write replaces an existing recording file with data, which must be a
// valid recording document.
func (l *Library) Write(folder, rel string, data []byte) error {
	p, err := l.existing(folder, rel)
	if err != nil {
		return err
	}
	rec, err := unmarshalRecording(data)
	if err != nil {
		return fmt.Errorf("invalid recording: %w", err)
	}
	out, err := marshalRecording(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recording: %w", err)
	}

	unlock := l.locks.lock(filepath.Dir(p))
	defer unlock()
	if err := writeAtomic(p, out); err != nil {
		return storageErr("write", p, err)
	}
	return nil
}

// Delete removes one recording file.
func (l *Library) Delete(folder, rel string) error {
	p, err := l.existing(folder, rel)
	if err != nil {
		return err
	}
	unlock := l.locks.lock(filepath.Dir(p))
	defer unlock()
	if err := os.Remove(p); err != nil {
		return storageErr("delete", p, err)
	}
	return nil
}

func (l *Library) existing(folder, rel string) (string, error) {
	if err := checkFolder(folder); err != nil {
		return "", err
	}
	p, ok := util.SafeJoin(filepath.Join(l.root, folder), rel)
	if !ok || !strings.HasSuffix(p, ".json") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", storageErr("stat", p, err)
	}
	return p, nil
}
