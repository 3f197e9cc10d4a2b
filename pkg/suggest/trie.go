package suggest

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// buildTrie indexes names by their lowercase form; items keep the
// original spelling.
func buildTrie(names []string) *patricia.Trie {
	trie := patricia.NewTrie()
	for _, name := range names {
		if name == "" {
			continue
		}
		trie.Set(patricia.Prefix(strings.ToLower(name)), name)
	}
	return trie
}

// SearchTrie returns every entry below lowerPrefix except the prefix itself.
func SearchTrie(trie *patricia.Trie, lowerPrefix string, kind Kind) []Suggestion {
	if trie == nil {
		return []Suggestion{}
	}

	var suggestions []Suggestion
	err := trie.VisitSubtree(patricia.Prefix(lowerPrefix), func(p patricia.Prefix, item patricia.Item) error {
		if string(p) == lowerPrefix {
			return nil
		}
		name, ok := item.(string)
		if !ok {
			log.Errorf("Unknown item type: %T for name %s", item, p)
			return nil
		}
		suggestions = append(suggestions, Suggestion{Name: name, Kind: kind})
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting trie subtree: %v", err)
	}
	return suggestions
}
