package swank

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateContinuation means an id was registered twice, which the
// monotonic counter should make impossible.
var ErrDuplicateContinuation = errors.New("swank: continuation already registered")

// ActionKind says what to do when a continuation's reply arrives.
type ActionKind int

const (
	ActionNone ActionKind = iota
	// ActionPrintValue shows the returned value.
	ActionPrintValue
	// ActionPrint shows a fixed message instead of the value.
	ActionPrint
	// ActionLoadCompiled loads the fasl produced by a successful compile.
	ActionLoadCompiled
	// ActionJumpToDefinition reads the value as find-definitions results.
	ActionJumpToDefinition
	// ActionResolvePackages settles a UI promise with the package list.
	ActionResolvePackages
	// ActionResolveSymbols settles a UI promise with a package's symbols.
	ActionResolveSymbols
)

func (k ActionKind) String() string {
	switch k {
	case ActionPrintValue:
		return "print-value"
	case ActionPrint:
		return "print"
	case ActionLoadCompiled:
		return "load-compiled"
	case ActionJumpToDefinition:
		return "jump-to-definition"
	case ActionResolvePackages:
		return "resolve-packages"
	case ActionResolveSymbols:
		return "resolve-symbols"
	default:
		return "none"
	}
}

// Target is where printed output goes.
type Target int

const (
	ToREPL Target = iota
	ToNotification
)

// PendingAction is the client's memory of a request awaiting its reply.
type PendingAction struct {
	Kind    ActionKind
	Target  Target // ActionPrintValue, ActionPrint
	Message string // ActionPrint
	Promise uint64 // ActionResolvePackages, ActionResolveSymbols
}

// LookupFunc finds the action registered for a continuation id.
type LookupFunc func(id uint64) (PendingAction, bool)

// Registry issues continuation ids and remembers pending actions. Ids start
// at 1 and are never reused; entries are never evicted.
type Registry struct {
	mu      sync.RWMutex
	last    uint64
	pending map[uint64]PendingAction
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[uint64]PendingAction),
	}
}

// Next returns a fresh continuation id.
func (r *Registry) Next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	return r.last
}

// Register stores action for id. It never overwrites.
func (r *Registry) Register(id uint64, action PendingAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateContinuation, id)
	}
	r.pending[id] = action
	return nil
}

// Lookup returns the action for id without removing it.
func (r *Registry) Lookup(id uint64) (PendingAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.pending[id]
	return action, ok
}

// Len reports how many actions are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
