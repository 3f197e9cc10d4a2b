// Package session talks to one Slynk server over TCP. A Session owns the
// optional runtime child, a writer goroutine that renders requests and a
// reader goroutine that decodes replies into the Answers channel.
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bastiangx/slynkserve/internal/logger"
	"github.com/bastiangx/slynkserve/pkg/config"
	"github.com/bastiangx/slynkserve/pkg/process"
	"github.com/bastiangx/slynkserve/pkg/swank"
	"github.com/bastiangx/slynkserve/pkg/wire"
	"github.com/charmbracelet/log"
)

var (
	// ErrNotConnected is returned by requests on a session whose
	// connection was never established.
	ErrNotConnected = errors.New("session: not connected")
	// ErrClosed is returned by requests after Quit or writer loss.
	ErrClosed = errors.New("session: closed")
)

const (
	dialTimeout = 2 * time.Second
	quitGrace   = time.Second
)

// Session is a live or inert connection to a Slynk server.
type Session struct {
	cfg      *config.Config
	proc     *process.Supervisor
	codec    *wire.Codec
	registry *swank.Registry
	logger   *log.Logger
	initErr  error

	requests   chan swank.Message
	answers    chan swank.Answer
	writerDone chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once

	mu     sync.Mutex
	pkg    string
	prompt string
}

// New starts the configured runtime, unless the config attaches to a
// running server, and connects to it. A spawn failure is returned as an
// error. A connection failure is not: the session comes back inert with
// InitErr set so the caller can still read ProcessLog.
func New(cfg *config.Config) (*Session, error) {
	s := &Session{
		cfg:        cfg,
		registry:   swank.NewRegistry(),
		logger:     logger.New("session"),
		requests:   make(chan swank.Message),
		answers:    make(chan swank.Answer),
		writerDone: make(chan struct{}),
		closed:     make(chan struct{}),
		pkg:        swank.DefaultPackage,
		prompt:     swank.DefaultPrompt,
	}

	if cfg.Runtime.Attach() {
		s.proc = process.Attached()
	} else {
		proc, err := process.Start(cfg.Runtime.Path, cfg.Runtime.CommandArgs(), cfg.Runtime.StopSignal)
		if err != nil {
			return nil, err
		}
		s.proc = proc
	}

	conn, err := s.dial()
	if err != nil {
		s.logger.Errorf("%v", err)
		s.initErr = err
		close(s.answers)
		close(s.writerDone)
		return s, nil
	}
	s.logger.Infof("connected to %s", cfg.Slynk.Address)

	s.codec = wire.NewCodec(conn)
	go s.writeLoop()
	go s.readLoop()
	return s, nil
}

// dial makes one attempt plus the configured number of retries, giving up
// early if the runtime announces it is quitting.
func (s *Session) dial() (net.Conn, error) {
	addr := s.cfg.Slynk.Address
	attempts := s.cfg.Slynk.ConnectRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		s.logger.Infof("connect attempt %d/%d to %s failed: %v", attempt, attempts, addr, err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(s.cfg.Slynk.RetryInterval()):
		case <-s.proc.Stopped():
			return nil, fmt.Errorf("session: runtime quit before %s accepted connections", addr)
		}
	}
	return nil, fmt.Errorf("session: connecting to %s after %d attempts: %w", addr, attempts, lastErr)
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)

	if err := s.write(swank.CreateREPL{}); err != nil {
		s.logger.Errorf("creating REPL: %v", err)
		return
	}
	for {
		select {
		case msg := <-s.requests:
			if err := s.write(msg); err != nil {
				s.logger.Errorf("writing request: %v", err)
				return
			}
			if _, stop := msg.(swank.Stop); stop {
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) write(msg swank.Message) error {
	req, err := swank.Render(msg, s.Package(), s.registry)
	if err != nil {
		// Not a connection problem; drop the request and keep going.
		s.logger.Errorf("%v", err)
		return nil
	}
	s.logger.Debugf("-> %s", req.Payload)
	return s.codec.Encode(req.Payload)
}

func (s *Session) readLoop() {
	defer close(s.answers)

	for {
		payload, err := s.codec.Decode()
		if err != nil {
			select {
			case <-s.closed:
				s.logger.Debugf("reader stopped: %v", err)
			default:
				s.logger.Errorf("session lost: %v", err)
			}
			return
		}
		s.logger.Debugf("<- %s", payload)

		answer, err := swank.Decode(payload, s.registry.Lookup)
		if err != nil {
			s.logger.Warnf("%v", err)
			answer = swank.ProtocolError{Payload: payload, Err: err}
		}
		if cs, ok := answer.(swank.ChannelSend); ok {
			if p, ok := cs.Method.(swank.Prompt); ok {
				s.setPrompt(p.Package, p.Prompt)
			}
		}

		derived, followUp := swank.Route(answer, s.registry.Lookup)
		if followUp != nil {
			// The writer may be blocked on a consumer that is blocked on us.
			go func() {
				if err := s.send(followUp); err != nil {
					s.logger.Warnf("dropping follow-up %T: %v", followUp, err)
				}
			}()
		}
		for _, a := range derived {
			if !s.forward(a) {
				return
			}
		}
		if !s.forward(answer) {
			return
		}
	}
}

func (s *Session) forward(a swank.Answer) bool {
	select {
	case s.answers <- a:
		return true
	case <-s.closed:
		return false
	}
}

func (s *Session) send(msg swank.Message) error {
	if s.initErr != nil {
		return ErrNotConnected
	}
	select {
	case s.requests <- msg:
		return nil
	case <-s.writerDone:
		return ErrClosed
	case <-s.closed:
		return ErrClosed
	}
}

func (s *Session) setPrompt(pkg, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkg = pkg
	s.prompt = prompt
}

// Package is the package requests are evaluated in.
func (s *Session) Package() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pkg
}

// Prompt is the REPL prompt matching Package.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// Answers delivers decoded replies. Each send blocks until received.
// The channel is closed when the connection is lost or the session quits.
func (s *Session) Answers() <-chan swank.Answer {
	return s.answers
}

// InitErr reports why the session could not connect, if it could not.
func (s *Session) InitErr() error {
	return s.initErr
}

// ProcessLog returns the runtime's console output captured so far.
func (s *Session) ProcessLog() []string {
	return s.proc.Log()
}

// Config returns the configuration the session was built from.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Evaluate sends form to the REPL channel.
func (s *Session) Evaluate(form string) error {
	return s.send(swank.Eval{Form: form})
}

// InteractiveEvaluate evaluates form and reports the result as a notification.
func (s *Session) InteractiveEvaluate(form string) error {
	return s.send(swank.InteractiveEval{Form: form})
}

// CompileAndLoadFile compiles path and loads the fasl if compilation succeeds.
func (s *Session) CompileAndLoadFile(path string) error {
	return s.send(swank.CompileAndLoadFile{Path: path})
}

// LoadFile loads a source file or fasl.
func (s *Session) LoadFile(path string) error {
	return s.send(swank.LoadFile{Path: path})
}

// CompileString compiles one toplevel form from buffer.
func (s *Session) CompileString(form, buffer, filename string, pos swank.Position) error {
	return s.send(swank.CompileString{Form: form, Buffer: buffer, Filename: filename, Position: pos})
}

// FindDefinition looks up the definitions of symbol.
func (s *Session) FindDefinition(symbol string) error {
	return s.send(swank.FindDefinitions{Symbol: symbol})
}

// ListPackages resolves promise with every package name.
func (s *Session) ListPackages(promise uint64) error {
	return s.send(swank.ListPackages{Promise: promise})
}

// ListSymbols resolves promise with the symbols of pkg matching kinds.
func (s *Session) ListSymbols(pkg string, kinds swank.SymbolKinds, promise uint64) error {
	return s.send(swank.ListSymbols{Package: pkg, Kinds: kinds, Promise: promise})
}

// DescribeSymbol prints the description of symbol to the REPL.
func (s *Session) DescribeSymbol(symbol string) error {
	return s.send(swank.DescribeSymbol{Symbol: symbol})
}

// Apropos prints the symbols matching pattern to the REPL.
func (s *Session) Apropos(pattern string) error {
	return s.send(swank.AproposSymbol{Pattern: pattern})
}

// InvokeNthRestart picks restart n of debugger level on thread.
func (s *Session) InvokeNthRestart(level, n, thread int) error {
	return s.send(swank.InvokeNthRestart{Level: level, N: n, Thread: thread})
}

// ReturnToMinibuffer answers a ReadFromMinibuffer.
func (s *Session) ReturnToMinibuffer(value string, thread, tag int) error {
	return s.send(swank.EmacsReturn{Value: value, Thread: thread, Tag: tag})
}

// Quit asks the Lisp to exit, closes the connection and kills the runtime.
// It is safe to call more than once.
func (s *Session) Quit() error {
	if err := s.send(swank.Stop{}); err == nil {
		select {
		case <-s.writerDone:
		case <-time.After(quitGrace):
			s.logger.Warn("writer did not finish sending quit request")
		}
	}
	s.close()
	return s.proc.Kill()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.codec != nil {
			if err := s.codec.Close(); err != nil {
				s.logger.Debugf("closing connection: %v", err)
			}
		}
	})
}

// Restart tears the session down and returns a fresh one built from the
// same config. Pending continuations of the old session are discarded.
func (s *Session) Restart() (*Session, error) {
	if err := s.Quit(); err != nil {
		s.logger.Warnf("quitting old session: %v", err)
	}
	return New(s.cfg)
}
