package feed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// GuestIdentity is the shared cache slot used before sign-in.
const GuestIdentity = "guest"

// Cache persists feed snapshots to JSON files, one per identity, so the
// last-known feed survives restarts.
type Cache struct {
	dir string
	mu  sync.Mutex
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Load returns the stored snapshot for an identity, or nil when none
// exists yet.
func (c *Cache) Load(identity string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(identity))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Liked == nil {
		snap.Liked = make(map[uint]bool)
	}
	return &snap, nil
}

func (c *Cache) Save(identity string, snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(identity), data, 0644)
}

// Clear removes an identity's snapshot. Missing files are not an error.
func (c *Cache) Clear(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(identity))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *Cache) path(identity string) string {
	if identity == "" {
		identity = GuestIdentity
	}
	return filepath.Join(c.dir, sanitize(identity)+".json")
}

func sanitize(identity string) string {
	var b strings.Builder
	for _, r := range identity {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
