// Package cache keeps synthesized utterance audio on disk so that replaying a
// recipe step does not call the speech backend again.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

const fileExt = ".pcm"

// Cache is a size-bounded LRU of PCM files. The index lives in memory and is
// rebuilt from the directory on start.
type Cache struct {
	dir      string
	maxBytes int64
	log      *slog.Logger

	mu     sync.Mutex
	lru    *list.List // front is most recently used; values are *item
	index  map[string]*list.Element
	bytes  int64
	hits   int
	misses int
}

type item struct {
	key  string
	size int64
}

// Stats summarises cache usage.
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int
	Misses  int
}

// New opens the cache in dir, creating it if needed, with a total size cap of
// maxBytes. Files left by a previous run are indexed oldest first.
func New(dir string, maxBytes int64, logger *slog.Logger) (*Cache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache: max size must be positive, got %d", maxBytes)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		log:      logger.With("component", "cache", "dir", dir),
		lru:      list.New(),
		index:    make(map[string]*list.Element),
	}
	c.reindex()
	return c, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+fileExt)
}

// Get returns the audio stored under key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		c.log.Warn("dropping unreadable entry", "key", key, "error", err)
		c.drop(el)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits++
	return data, true
}

// Put stores data under key and evicts the least recently used entries until
// the cache fits. Empty data and data larger than the cache are not stored.
func (c *Cache) Put(key string, data []byte) error {
	size := int64(len(data))
	if size == 0 || size > c.maxBytes {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
	c.shrink(c.maxBytes - size)

	if err := renameio.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	c.index[key] = c.lru.PushFront(&item{key: key, size: size})
	c.bytes += size
	return nil
}

// Stats returns a snapshot of cache usage.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.lru.Len(), Bytes: c.bytes, Hits: c.hits, Misses: c.misses}
}

// UtteranceKey describes everything that changes the synthesized audio.
type UtteranceKey struct {
	Engine string
	Text   string
	Voice  string
	Model  string
	Lang   string
	Pitch  float64
	Rate   float64
}

// Key hashes the fields into a file-name-safe key.
func (k UtteranceKey) Key() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "engine=%s\ntext=%s\nvoice=%s\nmodel=%s\nlang=%s\npitch=%f\nrate=%f\n",
		k.Engine, k.Text, k.Voice, k.Model, k.Lang, k.Pitch, k.Rate))
	return hex.EncodeToString(sum[:])
}

// drop removes an entry and its file. mu must be held.
func (c *Cache) drop(el *list.Element) {
	it := c.lru.Remove(el).(*item)
	delete(c.index, it.key)
	c.bytes -= it.size
	if err := os.Remove(c.path(it.key)); err != nil && !os.IsNotExist(err) {
		c.log.Warn("remove entry", "key", it.key, "error", err)
	}
}

// shrink evicts from the back until at most limit bytes remain. mu must be held.
func (c *Cache) shrink(limit int64) {
	for c.bytes > limit {
		el := c.lru.Back()
		if el == nil {
			return
		}
		it := el.Value.(*item)
		c.log.Debug("evicted entry", "key", it.key, "size", it.size)
		c.drop(el)
	}
}

// reindex rebuilds the LRU from the files on disk, treating the modification
// time as the last use.
func (c *Cache) reindex() {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+fileExt))
	if err != nil {
		c.log.Warn("scan cache dir", "error", err)
		return
	}
	type found struct {
		key  string
		info os.FileInfo
	}
	var files []found
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, found{strings.TrimSuffix(filepath.Base(p), fileExt), info})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].info.ModTime().Before(files[j].info.ModTime())
	})
	for _, f := range files {
		c.index[f.key] = c.lru.PushFront(&item{key: f.key, size: f.info.Size()})
		c.bytes += f.info.Size()
	}
	if len(files) > 0 {
		c.log.Info("indexed existing entries", "count", len(files), "total_bytes", c.bytes)
		c.shrink(c.maxBytes)
	}
}
