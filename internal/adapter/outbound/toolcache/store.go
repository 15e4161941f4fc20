// Package toolcache persists raw provider tool catalogs in a JSON file
// shared with the admin API. Writes are atomic (write-tmp-then-rename)
// and guarded by flock for cross-process safety plus a mutex in-process.
package toolcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

// FileCatalogStore implements tool.CatalogStore on a single JSON file
// keyed by provider name. Several bridges may update it concurrently;
// the whole-file lock keeps each update consistent and the last writer
// wins.
type FileCatalogStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// Compile-time interface check.
var _ tool.CatalogStore = (*FileCatalogStore)(nil)

// NewFileCatalogStore creates a catalog store for the given file path.
func NewFileCatalogStore(path string, logger *slog.Logger) *FileCatalogStore {
	return &FileCatalogStore{
		path:   path,
		logger: logger,
	}
}

// fileEntry is the on-disk shape for one provider's catalog.
type fileEntry struct {
	Tools    []tool.Tool `json:"tools"`
	CachedAt time.Time   `json:"cachedAt"`
}

// Put stores the raw catalog for a provider, replacing any previous one.
func (s *FileCatalogStore) Put(ctx context.Context, catalog *tool.Catalog) error {
	return s.update(func(entries map[string]fileEntry) {
		entries[catalog.ServerName] = fileEntry{
			Tools:    catalog.Tools,
			CachedAt: catalog.CachedAt,
		}
	})
}

// Delete removes the cached catalog for a provider. Removing a missing
// entry is not an error.
func (s *FileCatalogStore) Delete(ctx context.Context, serverName string) error {
	return s.update(func(entries map[string]fileEntry) {
		delete(entries, serverName)
	})
}

// Get returns the cached catalog for a provider, or nil if none.
func (s *FileCatalogStore) Get(ctx context.Context, serverName string) (*tool.Catalog, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return all[serverName], nil
}

// All returns every cached catalog keyed by provider name.
func (s *FileCatalogStore) All(ctx context.Context) (map[string]*tool.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	catalogs := make(map[string]*tool.Catalog, len(entries))
	for name, e := range entries {
		catalogs[name] = &tool.Catalog{
			ServerName: name,
			Tools:      e.Tools,
			CachedAt:   e.CachedAt,
		}
	}
	return catalogs, nil
}

// update runs a load-modify-write cycle under both locks.
func (s *FileCatalogStore) update(mutate func(map[string]fileEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cross-process file lock around read-modify-write.
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	entries, err := s.load()
	if err != nil {
		return err
	}

	mutate(entries)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tool cache: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	s.logger.Debug("tool cache saved", "path", s.path, "providers", len(entries))
	return nil
}

// load reads the cache file. A missing file yields an empty map.
func (s *FileCatalogStore) load() (map[string]fileEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]fileEntry{}, nil
		}
		return nil, fmt.Errorf("read tool cache: %w", err)
	}

	var entries map[string]fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse tool cache: %w", err)
	}
	if entries == nil {
		entries = map[string]fileEntry{}
	}
	return entries, nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileCatalogStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to cache: %w", err)
	}
	return nil
}
