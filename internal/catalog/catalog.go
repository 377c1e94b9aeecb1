// Package catalog is a small persistent ledger of completed conversions,
// keyed by the source file's digest. It backs batch re-runs: a dump whose
// digest is already recorded as verified can be skipped.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
)

// ErrNotFound is returned by Get for digests with no catalog entry.
var ErrNotFound = errors.New("catalog: entry not found")

// Entry records one completed conversion.
type Entry struct {
	Digest        string    `json:"digest"`
	SourcePath    string    `json:"source_path"`
	ContainerPath string    `json:"container_path"`
	ConversionID  string    `json:"conversion_id"`
	ConvertedAt   time.Time `json:"converted_at"`
	Verified      bool      `json:"verified"`
}

// Catalog is a pebble-backed key/value store of Entries.
type Catalog struct {
	db *pebble.DB
}

// Open opens (or creates) the catalog at dir.
func Open(dir string) (*Catalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Put records or replaces the entry for its digest. Writes are synced;
// losing a catalog entry means reconverting a file, losing a whole batch
// is worse.
func (c *Catalog) Put(e Entry) error {
	if e.Digest == "" {
		return errors.New("catalog: entry without digest")
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode catalog entry: %w", err)
	}
	if err := c.db.Set([]byte(e.Digest), val, pebble.Sync); err != nil {
		return fmt.Errorf("write catalog entry: %w", err)
	}
	return nil
}

// Get looks up the entry for a source digest.
func (c *Catalog) Get(digest string) (Entry, error) {
	val, closer, err := c.db.Get([]byte(digest))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("read catalog entry: %w", err)
	}
	defer func() { _ = closer.Close() }()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("decode catalog entry: %w", err)
	}
	return e, nil
}

// Delete removes the entry for a digest. Unknown digests are not an error.
func (c *Catalog) Delete(digest string) error {
	return c.db.Delete([]byte(digest), pebble.Sync)
}

// List returns all entries in digest order.
func (c *Catalog) List() ([]Entry, error) {
	iter, err := c.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	defer func() { _ = iter.Close() }()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("iterate catalog: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(val, &e); err != nil {
			return nil, fmt.Errorf("decode catalog entry %q: %w", iter.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return entries, nil
}
