package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hammamikhairi/iqra/internal/logger"
)

const defaultCacheEntries = 256

// CacheOption configures the audio cache.
type CacheOption func(*AudioCache)

// WithCacheEntries bounds the in-memory layer.
func WithCacheEntries(n int) CacheOption {
	return func(c *AudioCache) {
		c.entries = n
	}
}

// WithDiskLayer enables the on-disk layer in dir. With write false, existing
// files are read but nothing new is persisted.
func WithDiskLayer(dir string, write bool) CacheOption {
	return func(c *AudioCache) {
		c.cacheDir = dir
		c.diskWrite = write
	}
}

// AudioCache is a two-tier cache (bounded in-memory LRU + filesystem) for
// synthesized audio. The key is sha256(voice + ":" + text), so a voice
// change misses until the voice is switched back. Safe for concurrent use.
type AudioCache struct {
	mem       *lru.Cache[string, []byte]
	log       *logger.Logger
	voice     string
	entries   int
	cacheDir  string // empty disables the disk layer
	diskWrite bool
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewAudioCache creates an audio cache for the given voice.
func NewAudioCache(voice string, log *logger.Logger, opts ...CacheOption) *AudioCache {
	c := &AudioCache{
		log:     log,
		voice:   voice,
		entries: defaultCacheEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.entries <= 0 {
		c.entries = defaultCacheEntries
	}
	// lru.New only fails on a non-positive size.
	c.mem, _ = lru.New[string, []byte](c.entries)

	if c.cacheDir != "" && c.diskWrite {
		if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
			log.Error("failed to create cache dir %s: %v", c.cacheDir, err)
			c.diskWrite = false
		}
	}
	return c
}

// Get returns cached audio for the text, checking memory then disk.
func (c *AudioCache) Get(text string) ([]byte, bool) {
	key := c.hashKey(text)

	if data, ok := c.mem.Get(key); ok {
		c.hits.Add(1)
		c.log.Debug("hit (mem): %s (%d bytes)", truncate(text, 40), len(data))
		return data, true
	}

	if c.cacheDir != "" {
		if data, err := os.ReadFile(c.diskPath(key)); err == nil {
			c.mem.Add(key, data)
			c.hits.Add(1)
			c.log.Debug("hit (disk): %s (%d bytes)", truncate(text, 40), len(data))
			return data, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// Put stores audio for the text. Disk writes happen only when enabled.
func (c *AudioCache) Put(text string, audio []byte) {
	key := c.hashKey(text)
	if evicted := c.mem.Add(key, audio); evicted {
		c.log.Debug("evicted oldest entry")
	}
	if c.cacheDir == "" || !c.diskWrite {
		return
	}
	path := c.diskPath(key)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		c.log.Error("disk write failed for %s: %v", path, err)
	}
}

// Has reports whether audio for the text is cached in memory or on disk.
func (c *AudioCache) Has(text string) bool {
	key := c.hashKey(text)
	if c.mem.Contains(key) {
		return true
	}
	if c.cacheDir == "" {
		return false
	}
	_, err := os.Stat(c.diskPath(key))
	return err == nil
}

// Len returns the number of in-memory entries.
func (c *AudioCache) Len() int { return c.mem.Len() }

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Clear empties the in-memory layer and resets the counters. Disk files stay.
func (c *AudioCache) Clear() {
	c.mem.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *AudioCache) hashKey(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}

func (c *AudioCache) diskPath(key string) string {
	return filepath.Join(c.cacheDir, key+".audio")
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
