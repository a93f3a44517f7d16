package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"simq/internal/config"
)

// Store is a handle on one queue directory. It holds no other state, so
// several stores may point at the same directory.
type Store struct {
	dir string
}

// New returns a Store for dir without touching the filesystem.
func New(dir string) *Store {
	return &Store{dir: filepath.Clean(dir)}
}

// Open returns a Store for the configured queue directory after checking
// that it exists and is a directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.RequireQueueDir(); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.Queue.Dir)
	if err != nil {
		return nil, fmt.Errorf("open queue directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open queue directory: %s is not a directory", cfg.Queue.Dir)
	}
	return New(cfg.Queue.Dir), nil
}

// Dir returns the queue directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the descriptor path for id.
func (s *Store) Path(id int64) string {
	return filepath.Join(s.dir, FormatID(id))
}

// EnsureDir creates dir with mode 01777 (sticky, world-writable) when it
// does not exist, so any user may submit but only owners may delete.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("queue directory %s is not a directory", dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat queue directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o700); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create queue directory: %w", err)
	}
	// Chmod is not subject to the umask, unlike Mkdir.
	if err := os.Chmod(dir, 0o777|os.ModeSticky); err != nil {
		return fmt.Errorf("set queue directory permissions: %w", err)
	}
	return nil
}

// Scan enumerates the directory and reports the job count together with
// the smallest and largest IDs present. An empty queue is not an error; an
// unreadable directory is.
func (s *Store) Scan() (ScanResult, error) {
	result := ScanResult{Oldest: NoJob, Newest: NoJob}
	err := s.eachJob(func(id int64, _ fs.DirEntry) {
		if result.Count == 0 || id < result.Oldest {
			result.Oldest = id
		}
		if result.Count == 0 || id > result.Newest {
			result.Newest = id
		}
		result.Count++
	})
	if err != nil {
		return ScanResult{Oldest: NoJob, Newest: NoJob}, err
	}
	return result, nil
}

// IDs returns every queued job ID in ascending order.
func (s *Store) IDs() ([]int64, error) {
	var ids []int64
	if err := s.eachJob(func(id int64, _ fs.DirEntry) {
		ids = append(ids, id)
	}); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// List returns filesystem details for every queued job in ascending ID
// order. Descriptors that vanish between listing and stat are skipped.
func (s *Store) List() ([]Entry, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.Stat(id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) eachJob(fn func(id int64, entry fs.DirEntry)) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list queue directory %s: %w", s.dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, config.ReservedPrefix) || !entry.Type().IsRegular() {
			continue
		}
		id, ok := ParseID(name)
		if !ok {
			continue
		}
		fn(id, entry)
	}
	return nil
}
