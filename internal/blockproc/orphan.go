package blockproc

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/bp-node/bpd/internal/chainhash"
	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/wire"
)

// OrphanCache holds blocks received out of order, keyed by the hash of
// the parent block they are waiting on (spec.md §4.2, GLOSSARY). It is
// bounded by a configurable capacity; on overflow the least-recently-
// touched entry is evicted with a warning, which for a cache that is
// only ever written once per key and read once on drain is equivalent
// to oldest-first eviction (spec.md §9 open question 4).
type OrphanCache struct {
	cache *lru.Cache
	log   *log.Logger
}

// NewOrphanCache builds an OrphanCache with the given capacity.
func NewOrphanCache(capacity int) *OrphanCache {
	logger := log.NewModuleLogger(log.ModuleBlockProc).With("component", "orphan-cache")
	oc := &OrphanCache{log: logger}
	cache, err := lru.NewWithEvict(capacity, oc.onEvict)
	if err != nil {
		// capacity <= 0; fall back to a single-entry cache rather than
		// fail construction over a config mistake.
		cache, _ = lru.New(1)
	}
	oc.cache = cache
	return oc
}

func (oc *OrphanCache) onEvict(key, value interface{}) {
	hash, _ := key.(chainhash.BlockHash)
	oc.log.Warn("orphan cache full, dropping oldest entry", "waiting_on", hash.String())
}

// Put caches block under its parent's hash, queueing it until the
// parent is processed.
func (oc *OrphanCache) Put(prevHash chainhash.BlockHash, block *wire.Block) {
	oc.cache.Add(prevHash, block)
}

// Take removes and returns the block waiting on parentHash, if any.
func (oc *OrphanCache) Take(parentHash chainhash.BlockHash) (*wire.Block, bool) {
	v, ok := oc.cache.Get(parentHash)
	if !ok {
		return nil, false
	}
	oc.cache.Remove(parentHash)
	return v.(*wire.Block), true
}

// Len reports the number of cached orphans.
func (oc *OrphanCache) Len() int { return oc.cache.Len() }
