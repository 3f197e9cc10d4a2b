package suggest

import (
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tchap/go-patricia/v2/patricia"
)

// SymbolCache keeps the symbol tries of the most recently used packages.
type SymbolCache struct {
	tries  *lru.Cache[string, *patricia.Trie]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSymbolCache holds up to size packages. Sizes below 1 become 1.
func NewSymbolCache(size int) *SymbolCache {
	if size < 1 {
		size = 1
	}
	// New only fails for non-positive sizes.
	tries, _ := lru.NewWithEvict[string, *patricia.Trie](size, func(pkg string, _ *patricia.Trie) {
		log.Debugf("Evicted symbols of %s from cache", pkg)
	})
	return &SymbolCache{tries: tries}
}

// Put replaces the symbols of pkg.
func (sc *SymbolCache) Put(pkg string, symbols []string) {
	sc.tries.Add(cacheKey(pkg), buildTrie(symbols))
}

// Get returns the trie for pkg, marking it recently used.
func (sc *SymbolCache) Get(pkg string) (*patricia.Trie, bool) {
	trie, ok := sc.tries.Get(cacheKey(pkg))
	if ok {
		sc.hits.Add(1)
	} else {
		sc.misses.Add(1)
	}
	return trie, ok
}

// Contains reports whether pkg is cached without touching recency.
func (sc *SymbolCache) Contains(pkg string) bool {
	return sc.tries.Contains(cacheKey(pkg))
}

// Stats returns cache counters.
func (sc *SymbolCache) Stats() map[string]int {
	return map[string]int{
		"cachedPackages": sc.tries.Len(),
		"cacheHits":      int(sc.hits.Load()),
		"cacheMisses":    int(sc.misses.Load()),
	}
}

// Package names are case-insensitive in practice.
func cacheKey(pkg string) string {
	return strings.ToUpper(pkg)
}
