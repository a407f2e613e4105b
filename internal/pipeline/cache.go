package pipeline

import (
	"maps"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mediaapi/internal/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_metadata_cache_hits_total",
		Help: "Total number of metadata cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_metadata_cache_misses_total",
		Help: "Total number of metadata cache misses.",
	})
)

// Cache keeps extracted metadata keyed by kind, extension and content
// checksum so re-uploads of identical bytes skip extraction. The extension is
// part of the key because the MIME fallback, format attribute and page
// counter all depend on it. A nil *Cache is valid and never hits.
type Cache struct {
	lru *expirable.LRU[string, Metadata]
}

// NewCache returns an LRU of maxSize entries that expire after ttl.
// A non-positive maxSize disables caching and returns nil.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, Metadata](maxSize, nil, ttl)}
}

func cacheKey(kind model.Kind, ext, checksum string) string {
	return string(kind) + ":" + ext + ":" + checksum
}

// Get returns a copy of the cached metadata.
func (c *Cache) Get(kind model.Kind, ext, checksum string) (Metadata, bool) {
	if c == nil {
		return Metadata{}, false
	}
	m, ok := c.lru.Get(cacheKey(kind, ext, checksum))
	if !ok {
		cacheMissesTotal.Inc()
		return Metadata{}, false
	}
	cacheHitsTotal.Inc()
	return m.clone(), true
}

// Set stores a copy of m.
func (c *Cache) Set(kind model.Kind, ext, checksum string, m Metadata) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(kind, ext, checksum), m.clone())
}

// Len is the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (m Metadata) clone() Metadata {
	out := m
	out.Width = cloneInt(m.Width)
	out.Height = cloneInt(m.Height)
	out.PageCount = cloneInt(m.PageCount)
	out.DurationSeconds = cloneInt(m.DurationSeconds)
	if m.Attributes != nil {
		out.Attributes = maps.Clone(m.Attributes)
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
