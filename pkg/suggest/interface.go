// Package suggest completes Lisp package and symbol names from the
// listings a session resolves, using patricia tries keyed by lowercase name.
package suggest

// ICompleter defines the interface for name completion engines
type ICompleter interface {
	// Complete returns names in pkg starting with prefix. An empty pkg
	// completes package names; a "pkg:" prefix selects the package inline.
	Complete(pkg, prefix string, limit int) []Suggestion

	// SetPackages replaces the known package names.
	SetPackages(names []string)

	// SetSymbols replaces the known symbols of pkg.
	SetSymbols(pkg string, symbols []string)

	// Has reports whether symbols for pkg are cached.
	Has(pkg string) bool

	// Stats returns index sizes and cache counters.
	Stats() map[string]int
}
