// Package cache implements a content-addressed, TTL-based key/value store
// on local disk. One JSON file per key, atomic writes via temp-file rename.
//
// The cache must never be the reason a consultation fails: read, write, and
// cleanup errors are logged through the optional Logf hook and otherwise
// treated as a miss or no-op.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the default lifetime for consultation cache entries.
const DefaultTTL = 24 * time.Hour

// DefaultCleanupInterval throttles the opportunistic expired-entry sweep.
const DefaultCleanupInterval = time.Hour

// Entry is the on-disk shape of a cached value.
type Entry struct {
	Key            string            `json:"key"`
	Value          json.RawMessage   `json:"value"`
	CreatedAt      int64             `json:"created_at"`
	TTLSeconds     int64             `json:"ttl_seconds"`
	ExpiresAtHuman string            `json:"expires_at_human"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// expired reports whether the entry is past its TTL at the given time.
func (e *Entry) expired(now time.Time) bool {
	return now.Unix() > e.CreatedAt+e.TTLSeconds
}

// Filter selects entries for bulk deletion by metadata match. Zero-value
// fields are ignored; an entirely zero Filter matches everything.
type Filter struct {
	Subject string
	Kind    string
}

func (f Filter) empty() bool {
	return f.Subject == "" && f.Kind == ""
}

// matches reports whether the entry's metadata satisfies every set field.
// Entries without metadata never match a non-empty filter, so legacy
// unfiltered entries survive filtered clears.
func (f Filter) matches(meta map[string]string) bool {
	if f.empty() {
		return true
	}
	if len(meta) == 0 {
		return false
	}
	if f.Subject != "" && meta["subject"] != f.Subject {
		return false
	}
	if f.Kind != "" && meta["kind"] != f.Kind {
		return false
	}
	return true
}

// Stats summarizes the cache directory contents.
type Stats struct {
	Total   int   `json:"total"`
	Expired int   `json:"expired"`
	Active  int   `json:"active"`
	Bytes   int64 `json:"bytes"`
}

// Manager is a file-backed TTL cache. Safe for concurrent use within a
// process; across processes it relies on atomic renames and content-derived
// keys (concurrent writers to the same key write equivalent payloads).
type Manager struct {
	dir             string
	autoCleanup     bool
	cleanupInterval time.Duration

	// Logf, when set, receives diagnostics for swallowed errors.
	Logf func(format string, a ...any)

	mu          sync.Mutex
	lastCleanup time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Manager rooted at dir, creating the directory if needed.
func New(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Manager{
		dir:             dir,
		autoCleanup:     true,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
	}, nil
}

// DefaultDir returns the user-scoped cache directory for arbiter.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "arbiter"), nil
}

// SetAutoCleanup enables or disables the opportunistic expired-entry sweep.
func (m *Manager) SetAutoCleanup(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoCleanup = on
}

// Dir returns the cache directory path.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) logf(format string, a ...any) {
	if m.Logf != nil {
		m.Logf(format, a...)
	}
}

// sanitizeKey maps a cache key to a safe file name component.
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, sanitizeKey(key)+".json")
}

// Get returns the cached value for key, or ok=false if absent, expired, or
// unreadable. Expired entries are deleted on read.
func (m *Manager) Get(key string) (json.RawMessage, bool) {
	m.maybeCleanup()

	data, err := os.ReadFile(m.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logf("cache read %s: %v", key, err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		m.logf("cache parse %s: %v", key, err)
		return nil, false
	}

	if entry.expired(m.now()) {
		if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
			m.logf("cache expire %s: %v", key, err)
		}
		return nil, false
	}

	return entry.Value, true
}

// Set stores value under key with the given TTL. The entry is written to a
// temporary file and atomically renamed over the final path, so a reader
// never observes a half-written entry.
func (m *Manager) Set(key string, value any, ttl time.Duration, metadata map[string]string) error {
	m.maybeCleanup()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	now := m.now()
	entry := Entry{
		Key:            key,
		Value:          raw,
		CreatedAt:      now.Unix(),
		TTLSeconds:     int64(ttl.Seconds()),
		ExpiresAtHuman: now.Add(ttl).UTC().Format(time.RFC3339),
		Metadata:       metadata,
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	final := m.path(key)
	tmp, err := os.CreateTemp(m.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (m *Manager) Delete(key string) error {
	if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear deletes entries matching the filter and returns how many were
// removed. With a non-empty filter, entries lacking metadata are skipped.
func (m *Manager) Clear(f Filter) (int, error) {
	files, err := m.listEntries()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			m.logf("cache clear read %s: %v", path, err)
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			m.logf("cache clear parse %s: %v", path, err)
			continue
		}
		if !f.matches(entry.Metadata) {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.logf("cache clear remove %s: %v", path, err)
			continue
		}
		count++
	}
	return count, nil
}

// Stats walks the cache directory and summarizes entry counts and bytes.
func (m *Manager) Stats() (Stats, error) {
	files, err := m.listEntries()
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	now := m.now()
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		st.Total++
		st.Bytes += info.Size()

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.expired(now) {
			st.Expired++
		} else {
			st.Active++
		}
	}
	return st, nil
}

// Cleanup deletes all expired entries and returns how many were removed.
func (m *Manager) Cleanup() (int, error) {
	files, err := m.listEntries()
	if err != nil {
		return 0, err
	}

	count := 0
	now := m.now()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if !entry.expired(now) {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.logf("cache cleanup remove %s: %v", path, err)
			continue
		}
		count++
	}
	return count, nil
}

// maybeCleanup runs Cleanup at most once per cleanupInterval, as a side
// effect of normal Get/Set traffic. The throttle clock advances even when
// the sweep fails, so a persistent error cannot cause repeated sweeps.
func (m *Manager) maybeCleanup() {
	m.mu.Lock()
	if !m.autoCleanup || m.now().Sub(m.lastCleanup) < m.cleanupInterval {
		m.mu.Unlock()
		return
	}
	m.lastCleanup = m.now()
	m.mu.Unlock()

	if _, err := m.Cleanup(); err != nil {
		m.logf("cache cleanup: %v", err)
	}
}

func (m *Manager) listEntries() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(m.dir, e.Name()))
	}
	return files, nil
}
