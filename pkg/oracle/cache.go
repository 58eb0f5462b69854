package oracle

import (
	"context"
	"sync/atomic"

	"github.com/blacktop/unicycle/pkg/ride"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/twmb/murmur3"
)

// Scorer scores one query.
type Scorer interface {
	Query(ctx context.Context, q *Query) (*ride.Result, int64, error)
}

type scored struct {
	res   *ride.Result
	count int64
}

// Cached memoizes a Scorer. Failed rides are not remembered, so timeouts and
// malformed side channels reach the wrapped scorer again.
type Cached struct {
	next   Scorer
	cache  *lru.Cache[[2]uint64, scored]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps next with an LRU of size entries.
func NewCached(next Scorer, size int) (*Cached, error) {
	c, err := lru.New[[2]uint64, scored](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: c}, nil
}

// Query returns the remembered result for q or rides it.
func (c *Cached) Query(ctx context.Context, q *Query) (*ride.Result, int64, error) {
	key := cacheKey(q)
	if s, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return s.res, s.count, nil
	}
	c.misses.Add(1)
	res, count, err := c.next.Query(ctx, q)
	if err != nil || res == nil {
		return res, count, err
	}
	c.cache.Add(key, scored{res: res, count: count})
	return res, count, nil
}

// Stats reports cache hits and misses so far.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey hashes every field of q; stdin can be large and the LRU only
// needs to tell queries apart.
func cacheKey(q *Query) [2]uint64 {
	h := murmur3.New128()
	h.Write([]byte(q.Target))
	for _, a := range q.Args {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	h.Write([]byte{0})
	h.Write([]byte(q.Observer))
	h.Write([]byte{0})
	h.Write(q.Stdin)
	h1, h2 := h.Sum128()
	return [2]uint64{h1, h2}
}
