package ingest

import (
	"slices"
	"sync"
	"time"

	"github.com/starford/gleaner/internal/services/arxiv"
)

// DefaultCandidateTTL is how long search results stay selectable.
const DefaultCandidateTTL = time.Hour

type cacheEntry struct {
	papers []arxiv.Paper
	stored time.Time
}

// CandidateCache keeps the latest search results per channel. Each Get
// returns a snapshot, so a batch is unaffected by a later search.
type CandidateCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewCandidateCache returns a cache; ttl ≤ 0 uses DefaultCandidateTTL.
func NewCandidateCache(ttl time.Duration) *CandidateCache {
	if ttl <= 0 {
		ttl = DefaultCandidateTTL
	}
	return &CandidateCache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Put replaces the channel's candidates.
func (c *CandidateCache) Put(channel string, papers []arxiv.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[channel] = cacheEntry{papers: slices.Clone(papers), stored: c.now()}
}

// Get returns the channel's candidates if present and not expired.
func (c *CandidateCache) Get(channel string) ([]arxiv.Paper, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[channel]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.stored) > c.ttl {
		delete(c.entries, channel)
		return nil, false
	}
	return slices.Clone(e.papers), true
}
