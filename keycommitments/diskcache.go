package keycommitments

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrCacheEmpty is returned by DiskCache.Load when nothing was saved yet.
var ErrCacheEmpty = errors.New("key commitment cache is empty")

var (
	snapshotKey = []byte("commitments/snapshot")
	fetchedKey  = []byte("commitments/fetched_at")
)

// DiskCache persists the last good snapshot in a LevelDB database so a
// restarted process can verify before its first successful fetch.
type DiskCache struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	path   string
	closed bool
}

// OpenDiskCache opens (creating if needed) the cache at path.
func OpenDiskCache(path string) (*DiskCache, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("error opening leveldb at %s: %w", path, err)
	}
	return &DiskCache{db: db, path: path}, nil
}

// Save writes snap and its fetch time atomically.
func (c *DiskCache) Save(snap *Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(snapshotKey, data)
	batch.Put(fetchedKey, []byte(strconv.FormatInt(snap.FetchedAt().UnixMicro(), 10)))

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return leveldb.ErrClosed
	}
	if err := c.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("error writing key commitment cache at %s: %w", c.path, err)
	}
	return nil
}

// Load reads the saved snapshot, dropping keys that expired since it was
// saved.
func (c *DiskCache) Load(now time.Time) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, leveldb.ErrClosed
	}

	data, err := c.db.Get(snapshotKey, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrCacheEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key commitment cache at %s: %w", c.path, err)
	}

	snap, err := Parse(data, ParseOptions{Now: now})
	if err != nil {
		return nil, err
	}

	raw, err := c.db.Get(fetchedKey, nil)
	if err == nil {
		if us, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			snap.fetched = time.UnixMicro(us)
		}
	}
	return snap, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (c *DiskCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
