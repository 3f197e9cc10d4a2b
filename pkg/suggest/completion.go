package suggest

import (
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Kind says what a suggestion names.
type Kind string

const (
	KindPackage Kind = "package"
	KindSymbol  Kind = "symbol"
)

// Suggestion is one completion candidate.
type Suggestion struct {
	Name string `msgpack:"name"`
	Kind Kind   `msgpack:"kind"`
}

// Completer indexes package names and the symbols of recently listed packages.
type Completer struct {
	mu       sync.RWMutex
	packages *patricia.Trie
	count    int
	symbols  *SymbolCache
}

var _ ICompleter = (*Completer)(nil)

// NewCompleter creates an empty index caching symbols for cacheSize packages.
func NewCompleter(cacheSize int) *Completer {
	return &Completer{
		packages: patricia.NewTrie(),
		symbols:  NewSymbolCache(cacheSize),
	}
}

// SetPackages replaces the package index.
func (c *Completer) SetPackages(names []string) {
	trie := buildTrie(names)
	c.mu.Lock()
	c.packages = trie
	c.count = len(names)
	c.mu.Unlock()
	log.Debugf("Indexed %d packages", len(names))
}

// SetSymbols replaces the symbols cached for pkg.
func (c *Completer) SetSymbols(pkg string, symbols []string) {
	c.symbols.Put(pkg, symbols)
	log.Debugf("Indexed %d symbols of %s", len(symbols), pkg)
}

// Has reports whether symbols for pkg are cached.
func (c *Completer) Has(pkg string) bool {
	return c.symbols.Contains(pkg)
}

// Complete returns up to limit names, shortest first. A prefix written as
// "pkg:sym" or "pkg::sym" overrides pkg and keeps the qualifier in results.
func (c *Completer) Complete(pkg, prefix string, limit int) []Suggestion {
	if limit <= 0 {
		return []Suggestion{}
	}

	qualifier := ""
	if i := strings.Index(prefix, ":"); i > 0 {
		pkg = prefix[:i]
		rest := prefix[i+1:]
		qualifier = prefix[:i+1]
		if strings.HasPrefix(rest, ":") {
			qualifier += ":"
			rest = rest[1:]
		}
		prefix = rest
	}
	lowerPrefix := strings.ToLower(prefix)

	var results []Suggestion
	if pkg == "" {
		c.mu.RLock()
		results = SearchTrie(c.packages, lowerPrefix, KindPackage)
		c.mu.RUnlock()
	} else if trie, ok := c.symbols.Get(pkg); ok {
		results = SearchTrie(trie, lowerPrefix, KindSymbol)
	}

	sort.Slice(results, func(i, j int) bool {
		if len(results[i].Name) != len(results[j].Name) {
			return len(results[i].Name) < len(results[j].Name)
		}
		return results[i].Name < results[j].Name
	})
	if len(results) > limit {
		results = results[:limit]
	}
	if qualifier != "" {
		for i := range results {
			results[i].Name = qualifier + results[i].Name
		}
	}
	if results == nil {
		results = []Suggestion{}
	}
	return results
}

// Stats returns index sizes and cache counters.
func (c *Completer) Stats() map[string]int {
	stats := c.symbols.Stats()
	c.mu.RLock()
	stats["packages"] = c.count
	c.mu.RUnlock()
	return stats
}
