package swank

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bastiangx/slynkserve/pkg/sexp"
)

const (
	// DefaultPackage is the package requests run in until a prompt says otherwise.
	DefaultPackage = "COMMON-LISP-USER"
	// DefaultPrompt is the matching prompt string.
	DefaultPrompt = "CL-USER"
	// REPLChannel is the channel created by CreateREPL.
	REPLChannel = 1
)

// Message is an outgoing request.
type Message interface {
	isMessage()
}

// Eval sends a form to the REPL channel. Results arrive as channel pushes.
type Eval struct{ Form string }

// InteractiveEval evaluates a form and reports the value as a notification.
type InteractiveEval struct{ Form string }

// Position locates a form inside an editor buffer.
type Position struct {
	Offset int
	Line   int
	Column int
}

// CompileString compiles a single toplevel form from a buffer.
type CompileString struct {
	Form     string
	Buffer   string
	Position Position
	Filename string // empty when the buffer has no file
}

// CompileAndLoadFile compiles a file and loads the fasl on success.
type CompileAndLoadFile struct{ Path string }

// LoadFile loads a file or fasl.
type LoadFile struct{ Path string }

// FindDefinitions looks up where a symbol is defined.
type FindDefinitions struct{ Symbol string }

// ListPackages resolves Promise with every package name.
type ListPackages struct{ Promise uint64 }

// SymbolKinds filters ListSymbols.
type SymbolKinds struct {
	Functions bool
	Macros    bool
	Variables bool
	Classes   bool
}

// ListSymbols resolves Promise with the symbols of Package matching Kinds.
type ListSymbols struct {
	Package string
	Kinds   SymbolKinds
	Promise uint64
}

// DescribeSymbol prints the description of a symbol to the REPL.
type DescribeSymbol struct{ Symbol string }

// AproposSymbol prints apropos matches for a pattern to the REPL.
type AproposSymbol struct{ Pattern string }

// InvokeNthRestart picks restart N of debugger Level on Thread.
type InvokeNthRestart struct {
	Level  int
	N      int
	Thread int
}

// EmacsReturn answers a ReadFromMinibuffer.
type EmacsReturn struct {
	Value  string
	Thread int
	Tag    int
}

// CreateREPL opens the REPL channel. Sessions send it once on connect.
type CreateREPL struct{}

// Stop asks the Lisp to quit.
type Stop struct{}

func (Eval) isMessage()               {}
func (InteractiveEval) isMessage()    {}
func (CompileString) isMessage()      {}
func (CompileAndLoadFile) isMessage() {}
func (LoadFile) isMessage()           {}
func (FindDefinitions) isMessage()    {}
func (ListPackages) isMessage()       {}
func (ListSymbols) isMessage()        {}
func (DescribeSymbol) isMessage()     {}
func (AproposSymbol) isMessage()      {}
func (InvokeNthRestart) isMessage()   {}
func (EmacsReturn) isMessage()        {}
func (CreateREPL) isMessage()         {}
func (Stop) isMessage()               {}

// Request is a rendered Message. Continuation is zero for messages that do
// not carry one on the wire.
type Request struct {
	Payload      string
	Continuation uint64
	Action       *PendingAction
}

// Render turns msg into a wire payload scoped to pkg. Messages sent as
// :emacs-rex take a continuation id from reg and, where a typed follow-up
// is expected, register their pending action before the payload is written.
func Render(msg Message, pkg string, reg *Registry) (Request, error) {
	switch m := msg.(type) {
	case Eval:
		payload := fmt.Sprintf("(:emacs-channel-send %d (:process %s))", REPLChannel, sexp.Quote(m.Form))
		return Request{Payload: payload}, nil
	case EmacsReturn:
		payload := fmt.Sprintf("(:emacs-return %d %d %s)", m.Thread, m.Tag, sexp.Quote(m.Value))
		return Request{Payload: payload}, nil
	}

	form, thread, action, err := rex(msg)
	if err != nil {
		return Request{}, err
	}

	id := reg.Next()
	if action != nil {
		if err := reg.Register(id, *action); err != nil {
			return Request{}, err
		}
	}
	return Request{
		Payload:      fmt.Sprintf("(:emacs-rex %s %s %s %d)", form, sexp.Quote(pkg), thread, id),
		Continuation: id,
		Action:       action,
	}, nil
}

// rex returns the form, thread designator and pending action of an :emacs-rex message.
func rex(msg Message) (string, string, *PendingAction, error) {
	const anyThread = "t"
	q := sexp.Quote

	switch m := msg.(type) {
	case CreateREPL:
		return fmt.Sprintf("(slynk-mrepl:create-mrepl %d)", REPLChannel), anyThread, nil, nil
	case InteractiveEval:
		return "(slynk:interactive-eval " + q(m.Form) + ")", anyThread,
			&PendingAction{Kind: ActionPrintValue, Target: ToNotification}, nil
	case CompileString:
		form := fmt.Sprintf("(slynk:compile-string-for-emacs %s %s '((:position %d) (:line %d %d)) %s 'nil)",
			q(m.Form), q(m.Buffer), m.Position.Offset, m.Position.Line, m.Position.Column, sexp.StringOrNil(m.Filename))
		return form, anyThread, nil, nil
	case CompileAndLoadFile:
		return "(slynk:compile-file-for-emacs " + q(m.Path) + " t)", anyThread,
			&PendingAction{Kind: ActionLoadCompiled}, nil
	case LoadFile:
		return "(slynk:load-file " + q(m.Path) + ")", anyThread,
			&PendingAction{Kind: ActionPrint, Target: ToREPL, Message: "File loaded."}, nil
	case FindDefinitions:
		return "(slynk:find-definitions-for-emacs " + q(m.Symbol) + ")", anyThread,
			&PendingAction{Kind: ActionJumpToDefinition}, nil
	case ListPackages:
		return `(slynk:interactive-eval "(list-all-packages)")`, anyThread,
			&PendingAction{Kind: ActionResolvePackages, Promise: m.Promise}, nil
	case ListSymbols:
		return "(slynk:eval-and-grab-output " + q(symbolListingForm(m.Package, m.Kinds)) + ")", anyThread,
			&PendingAction{Kind: ActionResolveSymbols, Promise: m.Promise}, nil
	case DescribeSymbol:
		return "(slynk:describe-symbol " + q(m.Symbol) + ")", anyThread,
			&PendingAction{Kind: ActionPrintValue, Target: ToREPL}, nil
	case AproposSymbol:
		return "(slynk-apropos:apropos-list-for-emacs " + q(m.Pattern) + " t nil)", anyThread,
			&PendingAction{Kind: ActionPrintValue, Target: ToREPL}, nil
	case InvokeNthRestart:
		return fmt.Sprintf("(slynk:invoke-nth-restart-for-emacs %d %d)", m.Level, m.N), strconv.Itoa(m.Thread), nil, nil
	case Stop:
		return "(slynk:quit-lisp)", anyThread, nil, nil
	default:
		return "", "", nil, fmt.Errorf("swank: cannot render message %T", msg)
	}
}

// symbolListingForm prints the symbols whose home is pkg and that match kinds.
func symbolListingForm(pkg string, kinds SymbolKinds) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(let ((res (list)) (pkg (find-package %s)))", sexp.Quote(pkg))
	sb.WriteString(" (when pkg (do-symbols (sym pkg)")
	sb.WriteString(" (when (and (eq (symbol-package sym) pkg)")
	fmt.Fprintf(&sb, " (or (and %s (fboundp sym) (not (macro-function sym)))", sexp.Bool(kinds.Functions))
	fmt.Fprintf(&sb, " (and %s (macro-function sym))", sexp.Bool(kinds.Macros))
	fmt.Fprintf(&sb, " (and %s (boundp sym))", sexp.Bool(kinds.Variables))
	fmt.Fprintf(&sb, " (and %s (find-class sym nil))))", sexp.Bool(kinds.Classes))
	sb.WriteString(" (pushnew sym res)))) (write res))")
	return sb.String()
}
