// Package process runs the Lisp runtime as a child and keeps its console
// output around for diagnosing a session that never came up.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/bastiangx/slynkserve/internal/logger"
	"github.com/charmbracelet/log"
)

// DefaultStopSignal is printed by the runtime when it is shutting down.
const DefaultStopSignal = "REPL~QUIT"

// Supervisor owns one child process and the pump reading its merged
// stdout and stderr. A Supervisor with no child is an attached session.
type Supervisor struct {
	cmd    *exec.Cmd
	stop   string
	logger *log.Logger

	mu    sync.Mutex
	lines []string

	stopped  chan struct{}
	drained  chan struct{}
	killOnce sync.Once
	killErr  error
}

// Start spawns path with args. Output is read rune by rune into a line log
// until EOF or until stopSignal appears; an empty stopSignal disables it.
func Start(path string, args []string, stopSignal string) (*Supervisor, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("process: creating output pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("process: starting %s: %w", path, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	s := &Supervisor{
		cmd:     cmd,
		stop:    stopSignal,
		logger:  logger.New("process"),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}
	s.logger.Debugf("started %s (pid %d)", path, cmd.Process.Pid)
	go s.pump(pr)
	return s, nil
}

// Attached returns a Supervisor for a runtime this program did not start.
// Its log stays empty and Kill is a no-op.
func Attached() *Supervisor {
	s := &Supervisor{
		logger:  logger.New("process"),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}
	close(s.drained)
	return s
}

func (s *Supervisor) pump(r io.ReadCloser) {
	defer close(s.drained)
	defer r.Close()

	br := bufio.NewReader(r)
	var line strings.Builder
	for {
		ch, _, err := br.ReadRune()
		if err != nil {
			if line.Len() > 0 {
				s.flush(&line)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warnf("reading runtime output: %v", err)
			}
			return
		}
		if ch == '\n' {
			s.flush(&line)
			continue
		}
		line.WriteRune(ch)
		if s.stop != "" && strings.Contains(line.String(), s.stop) {
			s.flush(&line)
			close(s.stopped)
			return
		}
	}
}

func (s *Supervisor) flush(line *strings.Builder) {
	text := line.String()
	line.Reset()
	s.logger.Debug(text)
	s.mu.Lock()
	s.lines = append(s.lines, text)
	s.mu.Unlock()
}

// Log returns a copy of the lines captured so far.
func (s *Supervisor) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Stopped is closed once the stop signal has been seen.
func (s *Supervisor) Stopped() <-chan struct{} {
	return s.stopped
}

// Drained is closed when the pump has stopped reading.
func (s *Supervisor) Drained() <-chan struct{} {
	return s.drained
}

// Pid returns the child's pid, or 0 when attached.
func (s *Supervisor) Pid() int {
	if s.cmd == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Kill terminates the child and reaps it. Calling it again returns the
// first result.
func (s *Supervisor) Kill() error {
	if s.cmd == nil {
		return nil
	}
	s.killOnce.Do(func() {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.killErr = fmt.Errorf("process: killing pid %d: %w", s.cmd.Process.Pid, err)
			return
		}
		// A killed child exits with a signal status; only a failed wait matters.
		var exitErr *exec.ExitError
		if err := s.cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
			s.killErr = fmt.Errorf("process: waiting for pid %d: %w", s.cmd.Process.Pid, err)
		}
		s.logger.Debugf("pid %d terminated", s.cmd.Process.Pid)
	})
	return s.killErr
}
