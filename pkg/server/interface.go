/*
Package server bridges an editor to a Slynk session with msgpack over
stdin/stdout.

# IPC

Clients write a stream of msgpack maps to stdin. Each request carries an id
and an op, plus the fields that op needs:

	{"id": "r1", "op": "eval", "form": "(+ 1 2)"}
	{"id": "r2", "op": "compile_file", "path": "/src/app.lisp"}
	{"id": "r3", "op": "list_symbols", "package": "APP", "kinds": ["function"], "promise": 7}
	{"id": "r4", "op": "complete", "package": "APP", "prefix": "make-", "limit": 10}

Every request is acknowledged once on stdout. Acks report whether the
request was handed to the session; results of the Lisp work arrive later
as events:

	{"id": "r1", "status": "ok"}
	{"id": "r4", "status": "ok", "data": [{"name": "MAKE-WIDGET", "kind": "symbol"}]}

Events are pushed as the session decodes answers. They carry a type, the
answer kind and the answer itself:

	{"type": "answer", "kind": "channel-send", "method": "write-values", "data": {...}}
	{"type": "answer", "kind": "notify", "data": {"text": "Failed to compile file.", "error": true}}
	{"type": "init_error", "error": "session: connecting to ...", "log": ["..."]}

# Ops

eval, interactive_eval, compile_file, load_file, compile_string,
find_definitions, list_packages, list_symbols, describe, apropos,
restart_nth, minibuffer_return, complete, debug_state, process_log,
diagnostics, restart and quit.

Promises in list_packages and list_symbols are chosen by the client and
echoed back in resolve-pending events; the server also indexes the
resolved names for complete.
*/
package server

import (
	"github.com/bastiangx/slynkserve/pkg/config"
	"github.com/bastiangx/slynkserve/pkg/swank"
)

// Request is one editor request. Fields unused by Op are left empty.
type Request struct {
	ID      string   `msgpack:"id"`
	Op      string   `msgpack:"op"`
	Form    string   `msgpack:"form,omitempty"`
	Path    string   `msgpack:"path,omitempty"`
	Buffer  string   `msgpack:"buffer,omitempty"`
	Offset  int      `msgpack:"offset,omitempty"`
	Line    int      `msgpack:"line,omitempty"`
	Column  int      `msgpack:"column,omitempty"`
	Symbol  string   `msgpack:"symbol,omitempty"`
	Package string   `msgpack:"package,omitempty"`
	Kinds   []string `msgpack:"kinds,omitempty"`
	Pattern string   `msgpack:"pattern,omitempty"`
	Promise uint64   `msgpack:"promise,omitempty"`
	Level   int      `msgpack:"level,omitempty"`
	N       int      `msgpack:"n,omitempty"`
	Thread  int      `msgpack:"thread,omitempty"`
	Tag     int      `msgpack:"tag,omitempty"`
	Value   string   `msgpack:"value,omitempty"`
	Prefix  string   `msgpack:"prefix,omitempty"`
	Limit   int      `msgpack:"limit,omitempty"`
}

// Ack answers a Request.
type Ack struct {
	ID     string `msgpack:"id"`
	Status string `msgpack:"status"`
	Error  string `msgpack:"error,omitempty"`
	Data   any    `msgpack:"data,omitempty"`
}

// Ack statuses.
const (
	StatusOk    = "ok"
	StatusError = "error"
)

// Event is pushed without a request.
type Event struct {
	Type   string   `msgpack:"type"`
	Kind   string   `msgpack:"kind,omitempty"`
	Method string   `msgpack:"method,omitempty"`
	Data   any      `msgpack:"data,omitempty"`
	Error  string   `msgpack:"error,omitempty"`
	Log    []string `msgpack:"log,omitempty"`
}

// Event types.
const (
	EventAnswer    = "answer"
	EventInitError = "init_error"
	EventRestarted = "restarted"
	EventLost      = "session_lost"
)

// DebugState reports the debugger level the editor should act on.
type DebugState struct {
	Active bool `msgpack:"active"`
	Thread int  `msgpack:"thread"`
	Level  int  `msgpack:"level"`
}

// Session is what the server needs from a session.
type Session interface {
	Answers() <-chan swank.Answer
	InitErr() error
	ProcessLog() []string
	Evaluate(form string) error
	InteractiveEvaluate(form string) error
	CompileAndLoadFile(path string) error
	LoadFile(path string) error
	CompileString(form, buffer, filename string, pos swank.Position) error
	FindDefinition(symbol string) error
	ListPackages(promise uint64) error
	ListSymbols(pkg string, kinds swank.SymbolKinds, promise uint64) error
	DescribeSymbol(symbol string) error
	Apropos(pattern string) error
	InvokeNthRestart(level, n, thread int) error
	ReturnToMinibuffer(value string, thread, tag int) error
	Quit() error
}

// SessionFactory builds a connected or inert Session from cfg.
type SessionFactory func(cfg *config.Config) (Session, error)
