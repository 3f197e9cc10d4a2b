package swank

import (
	"sort"
	"sync"
)

// DebugTracker follows debugger levels per thread from the answer stream.
// A thread is idle until a Debug answer arrives; DebugReturn for a level
// leaves that level and everything nested inside it.
type DebugTracker struct {
	mu     sync.Mutex
	levels map[int][]int // thread -> ascending active levels
	last   int           // thread of the most recent activation
}

// NewDebugTracker creates a tracker with every thread idle.
func NewDebugTracker() *DebugTracker {
	return &DebugTracker{levels: make(map[int][]int)}
}

// Observe applies a to the state machine. Other answers are ignored.
func (t *DebugTracker) Observe(a Answer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch d := a.(type) {
	case Debug:
		t.enter(d.Thread, d.Level)
	case DebugActivate:
		t.enter(d.Thread, d.Level)
	case DebugReturn:
		stack := t.levels[d.Thread]
		i := sort.SearchInts(stack, d.Level)
		if i == 0 {
			delete(t.levels, d.Thread)
			return
		}
		t.levels[d.Thread] = stack[:i]
	}
}

func (t *DebugTracker) enter(thread, level int) {
	stack := t.levels[thread]
	i := sort.SearchInts(stack, level)
	if i == len(stack) || stack[i] != level {
		stack = append(stack, 0)
		copy(stack[i+1:], stack[i:])
		stack[i] = level
	}
	t.levels[thread] = stack
	t.last = thread
}

// Level returns the innermost active level of thread, or 0 when idle.
func (t *DebugTracker) Level(thread int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.levels[thread]
	if len(stack) == 0 {
		return 0
	}
	return stack[len(stack)-1]
}

// Current returns the most recently activated thread that is still in the
// debugger, with its innermost level.
func (t *DebugTracker) Current() (thread, level int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stack := t.levels[t.last]; len(stack) > 0 {
		return t.last, stack[len(stack)-1], true
	}
	for th, stack := range t.levels {
		if len(stack) > 0 {
			return th, stack[len(stack)-1], true
		}
	}
	return 0, 0, false
}
