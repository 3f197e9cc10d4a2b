// Package cli is a line-oriented console over a Slynk session, for
// debugging the backend without an editor.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/bastiangx/slynkserve/internal/logger"
	"github.com/bastiangx/slynkserve/pkg/session"
	"github.com/bastiangx/slynkserve/pkg/swank"
	"github.com/charmbracelet/log"
)

const help = `Commands:
  ,restart N     invoke restart N of the active debugger level
  ,packages      list packages
  ,symbols PKG   list the symbols of PKG
  ,def SYM       find the definitions of SYM
  ,load FILE     compile and load FILE
  ,log           print the runtime's output
  ,reconnect     restart the runtime and session
  ,quit          quit
Anything else is evaluated in the REPL.`

// Session is what the console drives. *session.Session implements it.
type Session interface {
	Answers() <-chan swank.Answer
	InitErr() error
	ProcessLog() []string
	Package() string
	Evaluate(form string) error
	CompileAndLoadFile(path string) error
	FindDefinition(symbol string) error
	ListPackages(promise uint64) error
	ListSymbols(pkg string, kinds swank.SymbolKinds, promise uint64) error
	InvokeNthRestart(level, n, thread int) error
	ReturnToMinibuffer(value string, thread, tag int) error
	Restart() (*session.Session, error)
	Quit() error
}

var allKinds = swank.SymbolKinds{Functions: true, Macros: true, Variables: true, Classes: true}

// Console reads commands and forms from in and prints answers to out.
type Console struct {
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
	logger *log.Logger

	mu         sync.Mutex
	sess       Session
	debug      *swank.DebugTracker
	printed    chan struct{}
	minibuffer *swank.ReadFromMinibuffer
	promise    uint64
}

// NewConsole creates a console over sess.
func NewConsole(sess Session, in io.Reader, out io.Writer) *Console {
	c := &Console{
		in:     in,
		out:    out,
		logger: logger.New("cli"),
	}
	c.attach(sess)
	return c
}

// attach makes sess current and starts printing its answers.
func (c *Console) attach(sess Session) {
	done := make(chan struct{})
	tracker := swank.NewDebugTracker()
	c.mu.Lock()
	c.sess = sess
	c.debug = tracker
	c.printed = done
	c.minibuffer = nil
	c.mu.Unlock()
	go c.printAnswers(sess, tracker, done)
}

// Start runs the console until in is exhausted or ,quit is entered.
func (c *Console) Start() error {
	if err := c.current().InitErr(); err != nil {
		c.reportInitErr(err)
	}
	c.println("slynkserve console, ,help for commands")

	scanner := bufio.NewScanner(c.in)
	for {
		c.print(c.current().Package() + "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := c.handleLine(line); quit {
			break
		}
	}
	c.quit()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("cli: reading input: %w", err)
	}
	return nil
}

func (c *Console) current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// handleLine runs one line and reports whether the console should stop.
func (c *Console) handleLine(line string) bool {
	if !strings.HasPrefix(line, ",") {
		c.report(c.evaluate(line))
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	sess := c.current()
	var err error
	switch cmd {
	case "quit", "q":
		return true
	case "help", "h":
		c.println(help)
	case "restart":
		err = c.invokeRestart(sess, arg)
	case "packages":
		err = sess.ListPackages(c.nextPromise())
	case "symbols":
		if arg == "" {
			err = errors.New("usage: ,symbols PKG")
			break
		}
		err = sess.ListSymbols(arg, allKinds, c.nextPromise())
	case "def":
		if arg == "" {
			err = errors.New("usage: ,def SYM")
			break
		}
		err = sess.FindDefinition(arg)
	case "load":
		if arg == "" {
			err = errors.New("usage: ,load FILE")
			break
		}
		err = sess.CompileAndLoadFile(arg)
	case "log":
		for _, l := range sess.ProcessLog() {
			c.println(l)
		}
	case "reconnect":
		err = c.reconnect(sess)
	default:
		err = fmt.Errorf("unknown command ,%s", cmd)
	}
	c.report(err)
	return false
}

// evaluate sends line to the REPL, or answers a pending minibuffer read.
func (c *Console) evaluate(line string) error {
	c.mu.Lock()
	sess, read := c.sess, c.minibuffer
	c.minibuffer = nil
	c.mu.Unlock()
	if read != nil {
		return sess.ReturnToMinibuffer(line, read.Thread, read.Tag)
	}
	return sess.Evaluate(line)
}

func (c *Console) invokeRestart(sess Session, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return errors.New("usage: ,restart N")
	}
	c.mu.Lock()
	thread, level, ok := c.debug.Current()
	c.mu.Unlock()
	if !ok {
		return errors.New("not in the debugger")
	}
	return sess.InvokeNthRestart(level, n, thread)
}

func (c *Console) reconnect(old Session) error {
	next, err := old.Restart()
	if err != nil {
		return fmt.Errorf("restarting: %w", err)
	}
	c.waitPrinted()
	c.attach(next)
	if err := next.InitErr(); err != nil {
		c.reportInitErr(err)
		return nil
	}
	c.println(noteStyle.Render("; Restarted"))
	return nil
}

func (c *Console) quit() {
	if err := c.current().Quit(); err != nil {
		c.logger.Warnf("quitting session: %v", err)
	}
	c.waitPrinted()
}

func (c *Console) waitPrinted() {
	c.mu.Lock()
	done := c.printed
	c.mu.Unlock()
	<-done
}

func (c *Console) nextPromise() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promise++
	return c.promise
}

func (c *Console) printAnswers(sess Session, tracker *swank.DebugTracker, done chan struct{}) {
	defer close(done)
	for a := range sess.Answers() {
		c.mu.Lock()
		tracker.Observe(a)
		if read, ok := a.(swank.ReadFromMinibuffer); ok {
			c.minibuffer = &read
		}
		c.mu.Unlock()

		if text := Render(a); text != "" {
			c.println(text)
		}
	}
}

func (c *Console) reportInitErr(err error) {
	c.println(errorStyle.Render(err.Error()))
	for _, l := range c.current().ProcessLog() {
		c.println(noteStyle.Render(l))
	}
}

func (c *Console) report(err error) {
	if err != nil {
		c.println(errorStyle.Render(err.Error()))
	}
}

func (c *Console) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprint(c.out, s)
}

func (c *Console) println(s string) {
	c.print(s + "\n")
}
