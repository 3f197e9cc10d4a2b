/*
Package swank models the Slynk/Swank remote protocol spoken between the
editor backend and a running Lisp.

Outgoing requests are Message values rendered by Render; incoming frames are
decoded by Decode into one of a closed set of Answer values. A few decoded
shapes are ambiguous on the wire: a generic :return means different things
depending on which request it answers, so the decoder consults the action
that was registered for the continuation id when the request was sent.

	(:emacs-rex (slynk:interactive-eval "(+ 1 2)") "COMMON-LISP-USER" t 7)
	(:return (:ok "3") 7)

Route then turns an answer plus its pending action into the client-side
answers (Notify, ResolvePending, ...) and follow-up requests it implies.
*/
package swank

// Answer is a decoded server frame, or a client-side answer derived from one.
type Answer interface {
	// Kind names the variant, e.g. "return" or "debug".
	Kind() string
	isAnswer()
}

// ReturnStatus is the status half of a :return frame.
type ReturnStatus int

const (
	StatusOk ReturnStatus = iota
	StatusAbort
)

func (s ReturnStatus) String() string {
	if s == StatusAbort {
		return "abort"
	}
	return "ok"
}

// WriteString is console output. ReplResult marks printed evaluation results.
type WriteString struct {
	Text       string `msgpack:"text"`
	ReplResult bool   `msgpack:"repl_result"`
}

// Return is the generic reply to an :emacs-rex request.
type Return struct {
	Continuation uint64       `msgpack:"continuation"`
	Status       ReturnStatus `msgpack:"status"`
	Value        string       `msgpack:"value"`
}

// Location points into a source file.
type Location struct {
	File     string `msgpack:"file"`
	Position int    `msgpack:"position"`
	Snippet  string `msgpack:"snippet,omitempty"`
}

// CompilerNote is one diagnostic of a compilation.
type CompilerNote struct {
	Message       string    `msgpack:"message"`
	Severity      string    `msgpack:"severity"`
	Location      *Location `msgpack:"location,omitempty"`
	SourceContext string    `msgpack:"source_context,omitempty"`
}

// ReturnCompilationResult answers compile-file and compile-string requests.
// Notes is nil when the server reported no notes.
type ReturnCompilationResult struct {
	Continuation uint64         `msgpack:"continuation"`
	Success      bool           `msgpack:"success"`
	Duration     float64        `msgpack:"duration"` // seconds
	Notes        []CompilerNote `msgpack:"notes"`
	LoadP        bool           `msgpack:"loadp"`
	FaslFile     string         `msgpack:"fasl_file,omitempty"`
}

// Definition is one find-definitions hit: either a Location or an Error.
type Definition struct {
	Label    string    `msgpack:"label"`
	Location *Location `msgpack:"location,omitempty"`
	Error    string    `msgpack:"error,omitempty"`
}

// ReturnFindDefinitionResult answers a find-definitions request.
type ReturnFindDefinitionResult struct {
	Continuation uint64       `msgpack:"continuation"`
	Definitions  []Definition `msgpack:"definitions"`
}

// Condition describes the error that entered the debugger.
type Condition struct {
	Description string `msgpack:"description"`
	Type        string `msgpack:"type"`
}

// Restart is a recovery option offered inside a debugger level.
type Restart struct {
	Name        string `msgpack:"name"`
	Description string `msgpack:"description"`
}

// Frame is one backtrace entry.
type Frame struct {
	Index       int    `msgpack:"index"`
	Description string `msgpack:"description"`
	Restartable bool   `msgpack:"restartable"`
}

// Debug enters a debugger level on a thread.
type Debug struct {
	Thread        int       `msgpack:"thread"`
	Level         int       `msgpack:"level"`
	Condition     Condition `msgpack:"condition"`
	Restarts      []Restart `msgpack:"restarts"`
	Frames        []Frame   `msgpack:"frames"`
	Continuations []uint64  `msgpack:"continuations"`
}

// DebugActivate asks the client to (re)display a debugger level.
type DebugActivate struct {
	Thread int  `msgpack:"thread"`
	Level  int  `msgpack:"level"`
	Select bool `msgpack:"select"`
}

// DebugReturn leaves a debugger level.
type DebugReturn struct {
	Thread   int  `msgpack:"thread"`
	Level    int  `msgpack:"level"`
	Stepping bool `msgpack:"stepping"`
}

// ChannelSend carries a server push addressed to a channel, usually the REPL.
type ChannelSend struct {
	Channel int           `msgpack:"channel"`
	Method  ChannelMethod `msgpack:"method"`
}

// ReadFromMinibuffer asks the client for a value. The reply goes out as an
// EmacsReturn keyed by Thread and Tag, not by continuation.
type ReadFromMinibuffer struct {
	Thread  int    `msgpack:"thread"`
	Tag     int    `msgpack:"tag"`
	Prompt  string `msgpack:"prompt"`
	Initial string `msgpack:"initial,omitempty"`
}

// IndentationUpdate is housekeeping; it is also what unknown frames decode to.
type IndentationUpdate struct{}

// NewFeatures reports the server's *features* list.
type NewFeatures struct {
	Features []string `msgpack:"features"`
}

// Notify is derived client-side: a short user-visible message.
type Notify struct {
	Text  string `msgpack:"text"`
	Error bool   `msgpack:"error"`
}

// ResolvePending is derived client-side and settles a UI query identified
// by Promise. Data holds a msgpack encoded []string.
type ResolvePending struct {
	Promise uint64 `msgpack:"promise"`
	Data    []byte `msgpack:"data"`
}

// ProtocolError reports a frame that was recognized but could not be decoded.
// The session stays up.
type ProtocolError struct {
	Payload string `msgpack:"payload"`
	Err     error  `msgpack:"-"`
}

func (WriteString) Kind() string                { return "write-string" }
func (Return) Kind() string                     { return "return" }
func (ReturnCompilationResult) Kind() string    { return "compilation-result" }
func (ReturnFindDefinitionResult) Kind() string { return "find-definitions" }
func (Debug) Kind() string                      { return "debug" }
func (DebugActivate) Kind() string              { return "debug-activate" }
func (DebugReturn) Kind() string                { return "debug-return" }
func (ChannelSend) Kind() string                { return "channel-send" }
func (ReadFromMinibuffer) Kind() string         { return "read-from-minibuffer" }
func (IndentationUpdate) Kind() string          { return "indentation-update" }
func (NewFeatures) Kind() string                { return "new-features" }
func (Notify) Kind() string                     { return "notify" }
func (ResolvePending) Kind() string             { return "resolve-pending" }
func (ProtocolError) Kind() string              { return "protocol-error" }

func (WriteString) isAnswer()                {}
func (Return) isAnswer()                     {}
func (ReturnCompilationResult) isAnswer()    {}
func (ReturnFindDefinitionResult) isAnswer() {}
func (Debug) isAnswer()                      {}
func (DebugActivate) isAnswer()              {}
func (DebugReturn) isAnswer()                {}
func (ChannelSend) isAnswer()                {}
func (ReadFromMinibuffer) isAnswer()         {}
func (IndentationUpdate) isAnswer()          {}
func (NewFeatures) isAnswer()                {}
func (Notify) isAnswer()                     {}
func (ResolvePending) isAnswer()             {}
func (ProtocolError) isAnswer()              {}

// ChannelMethod is the payload of a ChannelSend.
type ChannelMethod interface {
	Kind() string
	isChannelMethod()
}

// Prompt reports the REPL's current package and prompt string.
type Prompt struct {
	Package       string `msgpack:"package"`
	Prompt        string `msgpack:"prompt"`
	ErrorLevel    int    `msgpack:"error_level"`
	HistoryLength int    `msgpack:"history_length"`
	Condition     string `msgpack:"condition,omitempty"`
}

// WrittenValue is one printed REPL result.
type WrittenValue struct {
	Value        string `msgpack:"value"`
	HistoryIndex int    `msgpack:"history_index"`
	Symbol       string `msgpack:"symbol,omitempty"`
}

// WriteValues carries REPL evaluation results; empty for no values.
type WriteValues struct {
	Values []WrittenValue `msgpack:"values"`
}

// ChannelWriteString is output written to the REPL channel.
type ChannelWriteString struct {
	Text string `msgpack:"text"`
}

// EvaluationAborted reports that a REPL evaluation was aborted.
type EvaluationAborted struct {
	Message string `msgpack:"message"`
}

// UnknownMethod passes an unrecognized channel method through verbatim.
type UnknownMethod struct {
	Raw string `msgpack:"raw"`
}

func (Prompt) Kind() string             { return "prompt" }
func (WriteValues) Kind() string        { return "write-values" }
func (ChannelWriteString) Kind() string { return "write-string" }
func (EvaluationAborted) Kind() string  { return "evaluation-aborted" }
func (UnknownMethod) Kind() string      { return "unknown" }

func (Prompt) isChannelMethod()             {}
func (WriteValues) isChannelMethod()        {}
func (ChannelWriteString) isChannelMethod() {}
func (EvaluationAborted) isChannelMethod()  {}
func (UnknownMethod) isChannelMethod()      {}
