package incremental

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mfalkner/arbiter/internal/cache"
)

// StateTTL is the lifetime for persisted file-hash state. Much longer than
// consultation caches so incremental review survives across sessions.
const StateTTL = 168 * time.Hour

// HashFile returns the sha256 hex digest of a file's contents.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// HashFiles hashes each path. Unreadable files are skipped so one missing
// file does not abort the whole snapshot; the comparison will report them
// as removed.
func HashFiles(paths []string) map[string]string {
	hashes := make(map[string]string, len(paths))
	for _, p := range paths {
		h, err := HashFile(p)
		if err != nil {
			continue
		}
		hashes[p] = h
	}
	return hashes
}

// Tracker persists per-subject file-hash snapshots through the cache.
type Tracker struct {
	cache *cache.Manager
}

// NewTracker creates a Tracker backed by the given cache manager.
func NewTracker(c *cache.Manager) *Tracker {
	return &Tracker{cache: c}
}

// Load returns the last saved snapshot for subject, or an empty map if none
// exists or the entry is unreadable.
func (t *Tracker) Load(subject string) map[string]string {
	raw, ok := t.cache.Get(cache.FileHashKey(subject))
	if !ok {
		return map[string]string{}
	}
	var state map[string]string
	if err := json.Unmarshal(raw, &state); err != nil {
		return map[string]string{}
	}
	return state
}

// Save replaces the subject's snapshot wholesale.
func (t *Tracker) Save(subject string, state map[string]string) error {
	meta := map[string]string{"subject": subject, "kind": "filehash"}
	return t.cache.Set(cache.FileHashKey(subject), state, StateTTL, meta)
}
