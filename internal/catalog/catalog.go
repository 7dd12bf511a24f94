// Package catalog keeps the column lists of the allowed tables, fetched lazily from the
// schema capability and shared across requests.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrUnknownTable = errors.New("unknown table")

// fetchTimeout bounds a shared column fetch, which outlives the caller that started it.
const fetchTimeout = 15 * time.Second

// SchemaSource lists the columns of a table in table order. *store.DB satisfies it.
type SchemaSource interface {
	ListColumns(ctx context.Context, table string) ([]string, error)
}

type entry struct {
	columns   []string
	fetchedAt time.Time
}

// Catalog caches column lists per table. Concurrent misses for one table share a single
// fetch. A zero MaxAge keeps entries for the life of the process.
type Catalog struct {
	source  SchemaSource
	tables  []string
	allowed map[string]bool
	MaxAge  time.Duration

	mu      sync.RWMutex
	entries map[string]entry
	sfGroup singleflight.Group
	now     func() time.Time
}

func New(source SchemaSource, tables []string, maxAge time.Duration) *Catalog {
	c := &Catalog{
		source:  source,
		allowed: make(map[string]bool, len(tables)),
		MaxAge:  maxAge,
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, t := range tables {
		t = normalize(t)
		if t == "" || c.allowed[t] {
			continue
		}
		c.allowed[t] = true
		c.tables = append(c.tables, t)
	}
	return c
}

func normalize(table string) string {
	return strings.ToLower(strings.TrimSpace(table))
}

// Tables returns the allowed tables in configuration order.
func (c *Catalog) Tables() []string {
	return append([]string(nil), c.tables...)
}

// Known reports whether table is one of the allowed tables.
func (c *Catalog) Known(table string) bool {
	return c.allowed[normalize(table)]
}

// Columns returns the ordered column names of table.
func (c *Catalog) Columns(ctx context.Context, table string) ([]string, error) {
	t := normalize(table)
	if !c.allowed[t] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	c.mu.RLock()
	e, ok := c.entries[t]
	c.mu.RUnlock()
	if ok && !c.stale(e) {
		return append([]string(nil), e.columns...), nil
	}

	if c.source == nil {
		return nil, fmt.Errorf("no schema source for %s", t)
	}
	ch := c.sfGroup.DoChan(t, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		cols, err := c.source.ListColumns(fetchCtx, t)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[t] = entry{columns: cols, fetchedAt: c.now()}
		c.mu.Unlock()
		return cols, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", t, res.Err)
		}
		return append([]string(nil), res.Val.([]string)...), nil
	}
}

// Invalidate drops the cached columns of table.
func (c *Catalog) Invalidate(table string) {
	c.mu.Lock()
	delete(c.entries, normalize(table))
	c.mu.Unlock()
}

// InvalidateStale drops entries older than MaxAge and returns how many were dropped.
func (c *Catalog) InvalidateStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for t, e := range c.entries {
		if c.stale(e) {
			delete(c.entries, t)
			n++
		}
	}
	return n
}

func (c *Catalog) stale(e entry) bool {
	return c.MaxAge > 0 && c.now().Sub(e.fetchedAt) >= c.MaxAge
}
