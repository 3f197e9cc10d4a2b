package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bastiangx/slynkserve/internal/logger"
	"github.com/bastiangx/slynkserve/pkg/config"
	"github.com/bastiangx/slynkserve/pkg/suggest"
	"github.com/bastiangx/slynkserve/pkg/swank"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

var errNoSession = errors.New("no session")

// Promises above this are issued by the server for its own index and are
// not forwarded to the client.
const internalPromiseBase uint64 = 1 << 63

const pumpGrace = 2 * time.Second

// Server handles the IPC between an editor and one Slynk session at a time.
type Server struct {
	cfg        *config.Config
	newSession SessionFactory
	completer  suggest.ICompleter
	dec        *msgpack.Decoder
	logger     *log.Logger

	outMu sync.Mutex
	enc   *msgpack.Encoder

	mu           sync.Mutex
	sess         Session
	debug        *swank.DebugTracker
	pumpDone     chan struct{}
	promises     map[uint64]string // promise -> package, "" for the package list
	nextInternal uint64
}

// NewServer creates a server reading requests from in and writing acks and
// events to out, usually stdin and stdout.
func NewServer(cfg *config.Config, factory SessionFactory, in io.Reader, out io.Writer) *Server {
	return &Server{
		cfg:          cfg,
		newSession:   factory,
		completer:    suggest.NewCompleter(cfg.Server.SymbolCacheSize),
		dec:          msgpack.NewDecoder(in),
		enc:          msgpack.NewEncoder(out),
		logger:       logger.New("server"),
		debug:        swank.NewDebugTracker(),
		promises:     make(map[uint64]string),
		nextInternal: internalPromiseBase,
	}
}

// Start connects the session and serves requests until in reaches EOF or
// a quit request arrives. Only a failure to spawn the runtime or a broken
// request stream is returned as an error.
func (s *Server) Start() error {
	s.logger.Debug("Starting server")
	if err := s.connect(); err != nil {
		return err
	}
	defer s.shutdown()

	for {
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("stdin closed")
				return nil
			}
			return fmt.Errorf("server: reading request: %w", err)
		}
		ack := s.handle(req)
		s.send(ack)
		if req.Op == "quit" {
			return nil
		}
	}
}

func (s *Server) connect() error {
	sess, err := s.newSession(s.cfg)
	if err != nil {
		return fmt.Errorf("server: starting session: %w", err)
	}

	tracker := swank.NewDebugTracker()
	done := make(chan struct{})
	s.mu.Lock()
	s.sess = sess
	s.debug = tracker
	s.pumpDone = done
	s.mu.Unlock()
	go s.pump(sess, tracker, done)

	if err := sess.InitErr(); err != nil {
		s.emit(Event{Type: EventInitError, Error: err.Error(), Log: sess.ProcessLog()})
		return nil
	}
	s.prime(sess)
	return nil
}

// prime asks for the package list so completion works before the client
// lists anything itself.
func (s *Server) prime(sess Session) {
	promise := s.internalPromise("")
	if err := sess.ListPackages(promise); err != nil {
		s.logger.Warnf("listing packages: %v", err)
	}
}

// shutdown quits the current session and waits for its answers to drain.
func (s *Server) shutdown() {
	s.mu.Lock()
	sess, done := s.sess, s.pumpDone
	s.sess = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Quit(); err != nil {
		s.logger.Warnf("quitting session: %v", err)
	}
	select {
	case <-done:
	case <-time.After(pumpGrace):
		s.logger.Warn("session answers did not drain")
	}
}

// restart hands the editor a fresh session built from the same config.
func (s *Server) restart() error {
	s.shutdown()
	if err := s.connect(); err != nil {
		return err
	}
	s.emit(Event{Type: EventRestarted})
	return nil
}

func (s *Server) pump(sess Session, tracker *swank.DebugTracker, done chan struct{}) {
	defer close(done)
	for a := range sess.Answers() {
		tracker.Observe(a)
		if rp, ok := a.(swank.ResolvePending); ok && s.index(rp) {
			continue
		}
		s.emit(answerEvent(a))
	}

	s.mu.Lock()
	lost := s.sess == sess
	s.mu.Unlock()
	if lost && sess.InitErr() == nil {
		s.emit(Event{Type: EventLost, Error: "connection to the Lisp was lost", Log: sess.ProcessLog()})
	}
}

// index feeds resolved names into the completer and reports whether the
// promise was the server's own.
func (s *Server) index(rp swank.ResolvePending) (internal bool) {
	s.mu.Lock()
	pkg, known := s.promises[rp.Promise]
	delete(s.promises, rp.Promise)
	s.mu.Unlock()

	internal = rp.Promise >= internalPromiseBase
	if !known {
		return internal
	}
	items, err := rp.Items()
	if err != nil {
		s.logger.Warnf("indexing promise %d: %v", rp.Promise, err)
		return internal
	}
	if pkg == "" {
		s.completer.SetPackages(items)
	} else {
		s.completer.SetSymbols(pkg, items)
	}
	return internal
}

func (s *Server) internalPromise(pkg string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextInternal++
	s.promises[s.nextInternal] = pkg
	return s.nextInternal
}

func (s *Server) trackPromise(promise uint64, pkg string) {
	s.mu.Lock()
	s.promises[promise] = pkg
	s.mu.Unlock()
}

// symbolsPending reports whether the server already asked for pkg's symbols.
func (s *Server) symbolsPending(pkg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for promise, p := range s.promises {
		if promise > internalPromiseBase && p == pkg {
			return true
		}
	}
	return false
}

func answerEvent(a swank.Answer) Event {
	ev := Event{Type: EventAnswer, Kind: a.Kind(), Data: a}
	switch v := a.(type) {
	case swank.ChannelSend:
		ev.Method = v.Method.Kind()
	case swank.ProtocolError:
		if v.Err != nil {
			ev.Error = v.Err.Error()
		}
	case swank.ResolvePending:
		items, err := v.Items()
		if err != nil {
			ev.Error = err.Error()
		}
		ev.Data = map[string]any{"promise": v.Promise, "items": items}
	}
	return ev
}

func (s *Server) session() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, errNoSession
	}
	return s.sess, nil
}

// handle runs one request and builds its ack.
func (s *Server) handle(req Request) Ack {
	data, err := s.dispatch(req)
	if err != nil {
		s.logger.Debugf("request %s (%s) failed: %v", req.ID, req.Op, err)
		return Ack{ID: req.ID, Status: StatusError, Error: err.Error()}
	}
	return Ack{ID: req.ID, Status: StatusOk, Data: data}
}

func (s *Server) dispatch(req Request) (any, error) {
	switch req.Op {
	case "diagnostics":
		return config.Diagnose(s.cfg), nil
	case "restart":
		return nil, s.restart()
	case "quit":
		s.shutdown()
		return nil, nil
	case "debug_state":
		s.mu.Lock()
		tracker := s.debug
		s.mu.Unlock()
		thread, level, active := tracker.Current()
		return DebugState{Active: active, Thread: thread, Level: level}, nil
	}

	sess, err := s.session()
	if err != nil {
		return nil, err
	}

	switch req.Op {
	case "eval":
		return nil, sess.Evaluate(req.Form)
	case "interactive_eval":
		return nil, sess.InteractiveEvaluate(req.Form)
	case "compile_file":
		return nil, sess.CompileAndLoadFile(req.Path)
	case "load_file":
		return nil, sess.LoadFile(req.Path)
	case "compile_string":
		pos := swank.Position{Offset: req.Offset, Line: req.Line, Column: req.Column}
		return nil, sess.CompileString(req.Form, req.Buffer, req.Path, pos)
	case "find_definitions":
		return nil, sess.FindDefinition(req.Symbol)
	case "list_packages":
		s.trackPromise(req.Promise, "")
		return nil, sess.ListPackages(req.Promise)
	case "list_symbols":
		if req.Package == "" {
			return nil, errors.New("list_symbols needs a package")
		}
		kinds, err := parseKinds(req.Kinds)
		if err != nil {
			return nil, err
		}
		// Only unfiltered listings describe the whole package.
		if kinds == allKinds {
			s.trackPromise(req.Promise, req.Package)
		}
		return nil, sess.ListSymbols(req.Package, kinds, req.Promise)
	case "describe":
		return nil, sess.DescribeSymbol(req.Symbol)
	case "apropos":
		return nil, sess.Apropos(req.Pattern)
	case "restart_nth":
		return nil, sess.InvokeNthRestart(req.Level, req.N, req.Thread)
	case "minibuffer_return":
		return nil, sess.ReturnToMinibuffer(req.Value, req.Thread, req.Tag)
	case "complete":
		return s.complete(sess, req), nil
	case "process_log":
		return sess.ProcessLog(), nil
	default:
		return nil, fmt.Errorf("unknown op: %q", req.Op)
	}
}

// complete answers from the index and, when the package's symbols are not
// cached yet, asks the session for them so a later request can hit.
func (s *Server) complete(sess Session, req Request) []suggest.Suggestion {
	limit := req.Limit
	if limit <= 0 || limit > s.cfg.Server.CompletionLimit {
		limit = s.cfg.Server.CompletionLimit
	}
	if req.Package != "" && !s.completer.Has(req.Package) && !s.symbolsPending(req.Package) {
		promise := s.internalPromise(req.Package)
		if err := sess.ListSymbols(req.Package, allKinds, promise); err != nil {
			s.logger.Debugf("fetching symbols of %s: %v", req.Package, err)
		}
	}
	return s.completer.Complete(req.Package, req.Prefix, limit)
}

var allKinds = swank.SymbolKinds{Functions: true, Macros: true, Variables: true, Classes: true}

// parseKinds reads kind names; none means every kind.
func parseKinds(names []string) (swank.SymbolKinds, error) {
	if len(names) == 0 {
		return allKinds, nil
	}
	var kinds swank.SymbolKinds
	for _, name := range names {
		switch name {
		case "function":
			kinds.Functions = true
		case "macro":
			kinds.Macros = true
		case "variable":
			kinds.Variables = true
		case "class":
			kinds.Classes = true
		default:
			return swank.SymbolKinds{}, fmt.Errorf("unknown symbol kind: %q", name)
		}
	}
	return kinds, nil
}

func (s *Server) emit(ev Event) {
	s.send(ev)
}

// send writes one msgpack value to the client.
func (s *Server) send(v any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.logger.Errorf("Encoding response: %v", err)
	}
}
