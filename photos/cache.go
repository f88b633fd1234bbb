package photos

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"inspection-chat/models"
)

const cacheFile = "cached-photos.json"

// ErrNoCache is returned by Load when nothing is cached
var ErrNoCache = errors.New("no cached photos")

// Cache keeps a photo set on disk while the backend is unreachable
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

type cachedPhoto struct {
	Category    string `json:"category"`
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type cacheEnvelope struct {
	SavedAt time.Time     `json:"saved_at"`
	Photos  []cachedPhoto `json:"photos"`
}

func (c *Cache) path() string { return filepath.Join(c.dir, cacheFile) }

// Save replaces the cached set with set
func (c *Cache) Save(set *Set) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	env := cacheEnvelope{SavedAt: time.Now().UTC()}
	for _, p := range set.Photos() {
		env.Photos = append(env.Photos, cachedPhoto{
			Category:    p.Category,
			Ref:         p.Ref,
			ContentType: p.ContentType,
			Data:        p.Data,
		})
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal photo cache: %w", err)
	}

	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write photo cache: %w", err)
	}
	if err := os.Rename(tmp, c.path()); err != nil {
		return fmt.Errorf("failed to write photo cache: %w", err)
	}
	return nil
}

// Load restores the cached set. Photos are not recompressed
func (c *Cache) Load() (*Set, error) {
	data, err := os.ReadFile(c.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read photo cache: %w", err)
	}

	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse photo cache: %w", err)
	}

	set := NewSet()
	for _, p := range env.Photos {
		if err := set.check(p.Category); err != nil {
			return nil, fmt.Errorf("invalid photo cache: %w", err)
		}
		set.put(models.Photo{Category: p.Category, Ref: p.Ref, ContentType: p.ContentType, Data: p.Data})
	}
	return set, nil
}

// Clear removes the cached set, if any
func (c *Cache) Clear() error {
	err := os.Remove(c.path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear photo cache: %w", err)
	}
	return nil
}
