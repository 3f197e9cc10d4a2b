package swank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bastiangx/slynkserve/pkg/sexp"
)

// DecodeError reports a frame that matched a known prefix but was
// structurally malformed. It is fatal for the frame, not for the session.
type DecodeError struct {
	Prefix  string
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("swank: malformed %s frame: %v", e.Prefix, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errShape = errors.New("unexpected shape")

// Decode parses one frame payload. lookup may be nil when no continuation
// context is available.
//
// Payloads with an unrecognized prefix decode to IndentationUpdate.
func Decode(payload string, lookup LookupFunc) (Answer, error) {
	prefix := framePrefix(payload)
	decodeFn, known := decoders[prefix]
	if !known {
		return IndentationUpdate{}, nil
	}

	node, err := sexp.Parse(payload)
	if err != nil {
		return nil, &DecodeError{Prefix: prefix, Payload: payload, Err: err}
	}
	if lookup == nil {
		lookup = func(uint64) (PendingAction, bool) { return PendingAction{}, false }
	}
	answer, err := decodeFn(payload, node, lookup)
	if err != nil {
		return nil, &DecodeError{Prefix: prefix, Payload: payload, Err: err}
	}
	return answer, nil
}

type decodeFunc func(payload string, node sexp.Node, lookup LookupFunc) (Answer, error)

var decoders = map[string]decodeFunc{
	":return":               decodeReturn,
	":channel-send":         decodeChannelSend,
	":debug":                decodeDebug,
	":debug-activate":       decodeDebugActivate,
	":debug-return":         decodeDebugReturn,
	":write-string":         decodeWriteString,
	":read-from-minibuffer": decodeReadFromMinibuffer,
	":new-features":         decodeNewFeatures,
	":indentation-update":   func(string, sexp.Node, LookupFunc) (Answer, error) { return IndentationUpdate{}, nil },
}

// framePrefix returns the leading keyword of "(:keyword ...", lowercased.
func framePrefix(payload string) string {
	s := strings.TrimSpace(payload)
	if !strings.HasPrefix(s, "(") {
		return ""
	}
	s = s[1:]
	end := strings.IndexAny(s, " \t\r\n()\"")
	if end >= 0 {
		s = s[:end]
	}
	return strings.ToLower(s)
}

func decodeReturn(_ string, node sexp.Node, lookup LookupFunc) (Answer, error) {
	if node.Len() != 3 {
		return nil, fmt.Errorf("%w: want (:return (status value) id), got %d elements", errShape, node.Len())
	}
	id, err := uintAt(node, 2, "continuation")
	if err != nil {
		return nil, err
	}
	result, _ := node.Nth(1)
	if !result.IsList() || result.Len() < 1 {
		return nil, fmt.Errorf("%w: return status is not a list", errShape)
	}

	status := StatusOk
	switch head, _ := result.Head(); {
	case head.Is(":ok"):
	case head.Is(":abort"):
		status = StatusAbort
	default:
		return nil, fmt.Errorf("%w: unknown return status %s", errShape, head)
	}

	value := sexp.Sym("nil")
	if v, ok := result.Nth(1); ok {
		value = v
	}

	if status == StatusOk {
		if action, ok := lookup(id); ok && action.Kind == ActionJumpToDefinition {
			defs, err := decodeDefinitions(value)
			if err != nil {
				return nil, err
			}
			return ReturnFindDefinitionResult{Continuation: id, Definitions: defs}, nil
		}
		if value.HasHead(":compilation-result") {
			return decodeCompilationResult(id, value)
		}
	}

	return Return{Continuation: id, Status: status, Value: value.Value()}, nil
}

// decodeDefinitions reads (label (:location ...)) and (label (:error "...")) entries.
func decodeDefinitions(value sexp.Node) ([]Definition, error) {
	defs := []Definition{}
	if value.IsNil() {
		return defs, nil
	}
	if !value.IsList() {
		return nil, fmt.Errorf("%w: definitions are not a list", errShape)
	}
	for i, entry := range value.List {
		if entry.Len() != 2 {
			return nil, fmt.Errorf("%w: definition %d has %d elements", errShape, i, entry.Len())
		}
		label, _ := entry.Nth(0)
		where, _ := entry.Nth(1)
		def := Definition{Label: label.Value()}
		switch {
		case where.HasHead(":location"):
			loc, err := decodeLocation(where)
			if err != nil {
				return nil, fmt.Errorf("definition %d: %w", i, err)
			}
			def.Location = loc
		case where.HasHead(":error"):
			msg, err := stringAt(where, 1, "error message")
			if err != nil {
				return nil, fmt.Errorf("definition %d: %w", i, err)
			}
			def.Error = msg
		default:
			return nil, fmt.Errorf("%w: definition %d has neither :location nor :error", errShape, i)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// decodeLocation reads (:location (:file "f") (:position n) (:snippet "s")).
// Buffer locations leave File empty.
func decodeLocation(node sexp.Node) (*Location, error) {
	loc := &Location{}
	if file, ok := node.Find(":file"); ok {
		name, err := stringAt(file, 1, "file")
		if err != nil {
			return nil, err
		}
		loc.File = name
	}
	if pos, ok := node.Find(":position"); ok {
		n, err := intAt(pos, 1, "position")
		if err != nil {
			return nil, err
		}
		loc.Position = n
	}
	if snippet, ok := node.Find(":snippet"); ok {
		s, err := stringAt(snippet, 1, "snippet")
		if err != nil {
			return nil, err
		}
		loc.Snippet = s
	}
	return loc, nil
}

// decodeCompilationResult reads (:compilation-result notes success duration loadp fasl).
func decodeCompilationResult(id uint64, value sexp.Node) (Answer, error) {
	if value.Len() < 4 {
		return nil, fmt.Errorf("%w: compilation result has %d elements", errShape, value.Len())
	}
	res := ReturnCompilationResult{Continuation: id}

	notes, _ := value.Nth(1)
	if !notes.IsNil() {
		if !notes.IsList() {
			return nil, fmt.Errorf("%w: compiler notes are not a list", errShape)
		}
		res.Notes = make([]CompilerNote, 0, notes.Len())
		for i, n := range notes.List {
			note, err := decodeCompilerNote(n)
			if err != nil {
				return nil, fmt.Errorf("compiler note %d: %w", i, err)
			}
			res.Notes = append(res.Notes, note)
		}
	}

	success, _ := value.Nth(2)
	res.Success = success.IsTrue()

	duration, _ := value.Nth(3)
	switch duration.Kind {
	case sexp.Float:
		res.Duration = duration.Float
	case sexp.Integer:
		res.Duration = float64(duration.Int)
	default:
		if !duration.IsNil() {
			return nil, fmt.Errorf("%w: compilation duration %s is not a number", errShape, duration)
		}
	}

	if loadp, ok := value.Nth(4); ok {
		res.LoadP = loadp.IsTrue()
	}
	if fasl, ok := value.Nth(5); ok && !fasl.IsNil() {
		if !fasl.IsString() {
			return nil, fmt.Errorf("%w: fasl file %s is not a string", errShape, fasl)
		}
		res.FaslFile = fasl.Text
	}
	return res, nil
}

func decodeCompilerNote(node sexp.Node) (CompilerNote, error) {
	if !node.IsList() {
		return CompilerNote{}, fmt.Errorf("%w: note is not a list", errShape)
	}
	msg, ok := node.Get(":message")
	if !ok {
		return CompilerNote{}, fmt.Errorf("%w: note has no :message", errShape)
	}
	note := CompilerNote{Message: msg.Value()}
	if severity, ok := node.Get(":severity"); ok {
		note.Severity = strings.TrimPrefix(strings.ToLower(severity.Text), ":")
	}
	if where, ok := node.Get(":location"); ok && where.HasHead(":location") {
		loc, err := decodeLocation(where)
		if err != nil {
			return CompilerNote{}, err
		}
		note.Location = loc
	}
	if ctx, ok := node.Get(":source-context"); ok && ctx.IsString() {
		note.SourceContext = ctx.Text
	}
	return note, nil
}

func decodeChannelSend(payload string, node sexp.Node, _ LookupFunc) (Answer, error) {
	if node.Len() != 3 {
		return nil, fmt.Errorf("%w: want (:channel-send channel form), got %d elements", errShape, node.Len())
	}
	channel, err := intAt(node, 1, "channel")
	if err != nil {
		return nil, err
	}
	form, _ := node.Nth(2)
	if !form.IsList() || form.Len() == 0 {
		return nil, fmt.Errorf("%w: channel form is not a list", errShape)
	}

	method, err := decodeChannelMethod(payload, form)
	if err != nil {
		return nil, err
	}
	return ChannelSend{Channel: channel, Method: method}, nil
}

func decodeChannelMethod(payload string, form sexp.Node) (ChannelMethod, error) {
	head, _ := form.Head()
	switch {
	case head.Is(":prompt"):
		if form.Len() < 3 {
			return nil, fmt.Errorf("%w: prompt has %d elements", errShape, form.Len())
		}
		pkg, err := stringAt(form, 1, "prompt package")
		if err != nil {
			return nil, err
		}
		text, err := stringAt(form, 2, "prompt string")
		if err != nil {
			return nil, err
		}
		p := Prompt{Package: pkg, Prompt: text}
		if n, ok := form.Nth(3); ok && n.IsInteger() {
			p.ErrorLevel = int(n.Int)
		}
		if n, ok := form.Nth(4); ok && n.IsInteger() {
			p.HistoryLength = int(n.Int)
		}
		if c, ok := form.Nth(5); ok && !c.IsNil() {
			p.Condition = c.Value()
		}
		return p, nil

	case head.Is(":write-values"):
		values, ok := form.Nth(1)
		if !ok {
			return nil, fmt.Errorf("%w: write-values without values", errShape)
		}
		wv := WriteValues{Values: []WrittenValue{}}
		if values.IsNil() {
			return wv, nil
		}
		if !values.IsList() {
			return nil, fmt.Errorf("%w: write-values payload is not a list", errShape)
		}
		for i, v := range values.List {
			if !v.IsList() || v.Len() < 1 {
				return nil, fmt.Errorf("%w: written value %d is not a list", errShape, i)
			}
			val, _ := v.Nth(0)
			written := WrittenValue{Value: val.Value()}
			if idx, ok := v.Nth(1); ok && idx.IsInteger() {
				written.HistoryIndex = int(idx.Int)
			}
			if sym, ok := v.Nth(2); ok && !sym.IsNil() {
				written.Symbol = sym.Value()
			}
			wv.Values = append(wv.Values, written)
		}
		return wv, nil

	case head.Is(":write-string"):
		text, err := stringAt(form, 1, "channel output")
		if err != nil {
			return nil, err
		}
		return ChannelWriteString{Text: text}, nil

	case head.Is(":evaluation-aborted"):
		msg := ""
		if m, ok := form.Nth(1); ok && !m.IsNil() {
			msg = m.Value()
		}
		return EvaluationAborted{Message: msg}, nil

	default:
		return UnknownMethod{Raw: channelFormText(payload)}, nil
	}
}

// channelFormText slices the nested form of a :channel-send out of the raw payload.
func channelFormText(payload string) string {
	s := strings.TrimSpace(payload)
	s = strings.TrimSuffix(s, ")")
	start := strings.IndexByte(s[1:], '(')
	if start < 0 {
		return s
	}
	return strings.TrimSpace(s[start+1:])
}

// decodeDebug reads (:debug thread level (desc type extras) restarts frames conts).
func decodeDebug(_ string, node sexp.Node, _ LookupFunc) (Answer, error) {
	if node.Len() != 7 {
		return nil, fmt.Errorf("%w: want 7 elements, got %d", errShape, node.Len())
	}
	thread, err := intAt(node, 1, "thread")
	if err != nil {
		return nil, err
	}
	level, err := intAt(node, 2, "level")
	if err != nil {
		return nil, err
	}
	d := Debug{Thread: thread, Level: level, Restarts: []Restart{}, Frames: []Frame{}, Continuations: []uint64{}}

	cond, _ := node.Nth(3)
	if !cond.IsList() || cond.Len() < 2 {
		return nil, fmt.Errorf("%w: condition is not a (description type ...) list", errShape)
	}
	desc, _ := cond.Nth(0)
	typ, _ := cond.Nth(1)
	d.Condition = Condition{Description: desc.Value(), Type: typ.Value()}

	restarts, _ := node.Nth(4)
	if !restarts.IsNil() {
		if !restarts.IsList() {
			return nil, fmt.Errorf("%w: restarts are not a list", errShape)
		}
		for i, r := range restarts.List {
			if r.Len() < 2 {
				return nil, fmt.Errorf("%w: restart %d is not a (name description) pair", errShape, i)
			}
			name, _ := r.Nth(0)
			rdesc, _ := r.Nth(1)
			d.Restarts = append(d.Restarts, Restart{Name: name.Value(), Description: rdesc.Value()})
		}
	}

	frames, _ := node.Nth(5)
	if !frames.IsNil() {
		if !frames.IsList() {
			return nil, fmt.Errorf("%w: frames are not a list", errShape)
		}
		for i, f := range frames.List {
			idx, err := intAt(f, 0, "frame index")
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			fdesc, err := stringAt(f, 1, "frame description")
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			frame := Frame{Index: idx, Description: fdesc}
			if props, ok := f.Nth(2); ok {
				if restartable, ok := props.Get(":restartable"); ok {
					frame.Restartable = restartable.IsTrue()
				}
			}
			d.Frames = append(d.Frames, frame)
		}
	}

	// An atom here means no pending continuations.
	conts, _ := node.Nth(6)
	if conts.IsList() {
		for i := range conts.List {
			id, err := uintAt(conts, i, "continuation")
			if err != nil {
				return nil, err
			}
			d.Continuations = append(d.Continuations, id)
		}
	}
	return d, nil
}

func decodeDebugActivate(_ string, node sexp.Node, _ LookupFunc) (Answer, error) {
	thread, level, flag, err := debugTransition(node)
	if err != nil {
		return nil, err
	}
	return DebugActivate{Thread: thread, Level: level, Select: flag}, nil
}

func decodeDebugReturn(_ string, node sexp.Node, _ LookupFunc) (Answer, error) {
	thread, level, flag, err := debugTransition(node)
	if err != nil {
		return nil, err
	}
	return DebugReturn{Thread: thread, Level: level, Stepping: flag}, nil
}

// debugTransition reads (:debug-activate|:debug-return thread level [flag]).
func debugTransition(node sexp.Node) (thread, level int, flag bool, err error) {
	if node.Len() < 3 {
		return 0, 0, false, fmt.Errorf("%w: want (kind thread level [flag]), got %d elements", errShape, node.Len())
	}
	if thread, err = intAt(node, 1, "thread"); err != nil {
		return 0, 0, false, err
	}
	if level, err = intAt(node, 2, "level"); err != nil {
		return 0, 0, false, err
	}
	if f, ok := node.Nth(3); ok {
		flag = f.IsTrue()
	}
	return thread, level, flag, nil
}

// decodeWriteString reads (:write-string "text" [:repl-result]).
func decodeWriteString(_ string, node sexp.Node, _ LookupFunc) (Answer, error) {
	text, err := stringAt(node, 1, "output")
	if err != nil {
		return nil, err
	}
	target, _ := node.Nth(2)
	return WriteString{Text: text, ReplResult: target.Is(":repl-result")}, nil
}

// decodeReadFromMinibuffer reads (:read-from-minibuffer thread tag prompt initial).
func decodeReadFromMinibuffer(_ string, node sexp.Node, _ LookupFunc) (Answer, error) {
	if node.Len() < 4 {
		return nil, fmt.Errorf("%w: want (:read-from-minibuffer thread tag prompt [initial]), got %d elements", errShape, node.Len())
	}
	thread, err := intAt(node, 1, "thread")
	if err != nil {
		return nil, err
	}
	tag, err := intAt(node, 2, "tag")
	if err != nil {
		return nil, err
	}
	prompt, err := stringAt(node, 3, "prompt")
	if err != nil {
		return nil, err
	}
	r := ReadFromMinibuffer{Thread: thread, Tag: tag, Prompt: prompt}
	if initial, ok := node.Nth(4); ok && !initial.IsNil() {
		r.Initial = initial.Value()
	}
	return r, nil
}

func decodeNewFeatures(_ string, node sexp.Node, _ LookupFunc) (Answer, error) {
	features, ok := node.Nth(1)
	if !ok {
		return nil, fmt.Errorf("%w: new-features without a list", errShape)
	}
	nf := NewFeatures{Features: []string{}}
	if features.IsList() {
		for _, f := range features.List {
			nf.Features = append(nf.Features, f.Value())
		}
	}
	return nf, nil
}

func intAt(node sexp.Node, i int, what string) (int, error) {
	n, ok := node.Nth(i)
	if !ok || !n.IsInteger() {
		return 0, fmt.Errorf("%w: %s is not an integer", errShape, what)
	}
	return int(n.Int), nil
}

func uintAt(node sexp.Node, i int, what string) (uint64, error) {
	n, ok := node.Nth(i)
	if !ok || !n.IsInteger() || n.Int < 0 {
		return 0, fmt.Errorf("%w: %s is not a non-negative integer", errShape, what)
	}
	return uint64(n.Int), nil
}

func stringAt(node sexp.Node, i int, what string) (string, error) {
	n, ok := node.Nth(i)
	if !ok || !n.IsString() {
		return "", fmt.Errorf("%w: %s is not a string", errShape, what)
	}
	return n.Text, nil
}
