package swank

import (
	"reflect"
	"testing"
)

func lookupFrom(actions map[uint64]PendingAction) LookupFunc {
	return func(id uint64) (PendingAction, bool) {
		a, ok := actions[id]
		return a, ok
	}
}

func TestRouteCompileAndLoad(t *testing.T) {
	lookup := lookupFrom(map[uint64]PendingAction{4: {Kind: ActionLoadCompiled}})

	derived, follow := Route(ReturnCompilationResult{Continuation: 4, Success: true, FaslFile: "x.fasl"}, lookup)
	if len(derived) != 0 {
		t.Errorf("unexpected derived answers %+v", derived)
	}
	if follow != (LoadFile{Path: "x.fasl"}) {
		t.Errorf("follow-up: got %#v, want LoadFile x.fasl", follow)
	}

	derived, follow = Route(ReturnCompilationResult{Continuation: 4, Success: false, FaslFile: "x.fasl"}, lookup)
	if follow != nil {
		t.Errorf("failed compile must not load anything, got %#v", follow)
	}
	want := []Answer{Notify{Text: CompileFailedText, Error: true}}
	if !reflect.DeepEqual(derived, want) {
		t.Errorf("derived: got %#v, want %#v", derived, want)
	}

	derived, follow = Route(ReturnCompilationResult{Continuation: 4, Success: true}, lookup)
	if derived != nil || follow != nil {
		t.Errorf("success without fasl: got %#v, %#v", derived, follow)
	}
}

func TestRouteCompilationWithoutAction(t *testing.T) {
	derived, follow := Route(ReturnCompilationResult{Continuation: 2, Success: true, FaslFile: "y.fasl"}, lookupFrom(nil))
	if derived != nil || follow != nil {
		t.Errorf("got %#v, %#v", derived, follow)
	}
}

func TestRouteReturn(t *testing.T) {
	tests := []struct {
		name   string
		action PendingAction
		ret    Return
		want   []Answer
	}{
		{
			name:   "print value to notification",
			action: PendingAction{Kind: ActionPrintValue, Target: ToNotification},
			ret:    Return{Continuation: 1, Status: StatusOk, Value: "=> 3 (2 bits, #x3, #o3, #b11)"},
			want:   []Answer{Notify{Text: "=> 3 (2 bits, #x3, #o3, #b11)"}},
		},
		{
			name:   "aborted value is an error notification",
			action: PendingAction{Kind: ActionPrintValue, Target: ToNotification},
			ret:    Return{Continuation: 1, Status: StatusAbort, Value: "unbound"},
			want:   []Answer{Notify{Text: "unbound", Error: true}},
		},
		{
			name:   "print value to repl",
			action: PendingAction{Kind: ActionPrintValue, Target: ToREPL},
			ret:    Return{Continuation: 1, Status: StatusOk, Value: "CAR names a function"},
			want:   []Answer{WriteString{Text: "CAR names a function"}},
		},
		{
			name:   "fixed message",
			action: PendingAction{Kind: ActionPrint, Target: ToREPL, Message: "File loaded."},
			ret:    Return{Continuation: 1, Status: StatusOk, Value: "T"},
			want:   []Answer{WriteString{Text: "File loaded."}},
		},
		{
			name:   "definitions that came back as a plain return",
			action: PendingAction{Kind: ActionJumpToDefinition},
			ret:    Return{Continuation: 1, Status: StatusAbort, Value: "no such symbol"},
			want:   []Answer{Notify{Text: "no such symbol", Error: true}},
		},
		{
			name:   "no action",
			action: PendingAction{Kind: ActionNone},
			ret:    Return{Continuation: 1, Status: StatusOk, Value: "nil"},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived, follow := Route(tt.ret, lookupFrom(map[uint64]PendingAction{1: tt.action}))
			if follow != nil {
				t.Errorf("unexpected follow-up %#v", follow)
			}
			if !reflect.DeepEqual(derived, tt.want) {
				t.Errorf("got %#v, want %#v", derived, tt.want)
			}
		})
	}
}

func TestRouteResolvePackages(t *testing.T) {
	lookup := lookupFrom(map[uint64]PendingAction{6: {Kind: ActionResolvePackages, Promise: 11}})
	value := `(#<PACKAGE "SLYNK-MATCH"> #<PACKAGE "COMMON-LISP"> #<PACKAGE "ALEXANDRIA">)`

	derived, _ := Route(Return{Continuation: 6, Status: StatusOk, Value: value}, lookup)
	if len(derived) != 1 {
		t.Fatalf("got %d derived answers, want 1", len(derived))
	}
	rp, ok := derived[0].(ResolvePending)
	if !ok {
		t.Fatalf("got %T, want ResolvePending", derived[0])
	}
	if rp.Promise != 11 {
		t.Errorf("promise: got %d, want 11", rp.Promise)
	}
	items, err := rp.Items()
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	want := []string{"ALEXANDRIA", "COMMON-LISP", "SLYNK-MATCH"}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
}

func TestRouteResolveSymbols(t *testing.T) {
	lookup := lookupFrom(map[uint64]PendingAction{2: {Kind: ActionResolveSymbols, Promise: 5}})

	derived, _ := Route(Return{Continuation: 2, Status: StatusOk, Value: `("(FOO BAR BAZ)" "NIL")`}, lookup)
	if len(derived) != 1 {
		t.Fatalf("got %d derived answers, want 1", len(derived))
	}
	items, err := derived[0].(ResolvePending).Items()
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if want := []string{"BAR", "BAZ", "FOO"}; !reflect.DeepEqual(items, want) {
		t.Errorf("got %v, want %v", items, want)
	}
}

func TestRouteResolveSymbolsError(t *testing.T) {
	lookup := lookupFrom(map[uint64]PendingAction{2: {Kind: ActionResolveSymbols, Promise: 5}})

	tests := []struct {
		name string
		ret  Return
	}{
		{"aborted", Return{Continuation: 2, Status: StatusAbort, Value: "package not found"}},
		{"unreadable", Return{Continuation: 2, Status: StatusOk, Value: `("(FOO`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived, _ := Route(tt.ret, lookup)
			if len(derived) != 2 {
				t.Fatalf("got %d derived answers, want notify and resolve", len(derived))
			}
			if n, ok := derived[0].(Notify); !ok || !n.Error {
				t.Errorf("first answer: got %#v, want error Notify", derived[0])
			}
			rp, ok := derived[1].(ResolvePending)
			if !ok || rp.Promise != 5 {
				t.Fatalf("second answer: got %#v", derived[1])
			}
			items, err := rp.Items()
			if err != nil || len(items) != 0 {
				t.Errorf("promise should settle empty: %v, %v", items, err)
			}
		})
	}
}

func TestRouteUnrelatedAnswers(t *testing.T) {
	lookup := lookupFrom(map[uint64]PendingAction{1: {Kind: ActionPrintValue}})
	for _, a := range []Answer{WriteString{Text: "x"}, IndentationUpdate{}, Debug{Thread: 1, Level: 1}} {
		if derived, follow := Route(a, lookup); derived != nil || follow != nil {
			t.Errorf("%T: got %#v, %#v", a, derived, follow)
		}
	}
	if derived, follow := Route(Return{Continuation: 1}, nil); derived != nil || follow != nil {
		t.Errorf("nil lookup: got %#v, %#v", derived, follow)
	}
}
