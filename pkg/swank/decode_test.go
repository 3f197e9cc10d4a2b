package swank

import (
	"errors"
	"testing"
)

func jumpToDef(uint64) (PendingAction, bool) {
	return PendingAction{Kind: ActionJumpToDefinition}, true
}

func TestDecodeReturnNil(t *testing.T) {
	answer, err := Decode("(:return (:ok nil) 7)", nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ret, ok := answer.(Return)
	if !ok {
		t.Fatalf("got %T, want Return", answer)
	}
	if ret.Continuation != 7 || ret.Status != StatusOk || ret.Value != "nil" {
		t.Errorf("got %+v, want {7 ok nil}", ret)
	}
}

func TestDecodeReturnValues(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		status  ReturnStatus
		value   string
	}{
		{"string value", `(:return (:ok "3") 2)`, StatusOk, "3"},
		{"escaped quotes", `(:return (:ok "\"hello\" said the \"lisp\"") 2)`, StatusOk, `"hello" said the "lisp"`},
		{"multiline", "(:return (:ok \"line one\nline two\") 2)", StatusOk, "line one\nline two"},
		{"list value", `(:return (:ok ("out" "NIL")) 2)`, StatusOk, `("out" "NIL")`},
		{"abort", `(:return (:abort "#<UNBOUND-VARIABLE X {1001}>") 2)`, StatusAbort, "#<UNBOUND-VARIABLE X {1001}>"},
		{"abort without value", `(:return (:abort) 2)`, StatusAbort, "nil"},
		{"vector value", `(:return (:ok #(1 2)) 5)`, StatusOk, "#(1 2)"},
		{"pathname value", `(:return (:ok #p"/tmp/x.lisp") 5)`, StatusOk, `#p"/tmp/x.lisp"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := Decode(tt.payload, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			ret, ok := answer.(Return)
			if !ok {
				t.Fatalf("got %T, want Return", answer)
			}
			if ret.Status != tt.status {
				t.Errorf("status: got %v, want %v", ret.Status, tt.status)
			}
			if ret.Value != tt.value {
				t.Errorf("value: got %q, want %q", ret.Value, tt.value)
			}
		})
	}
}

func TestDecodeCompilationResultFailed(t *testing.T) {
	payload := `(:return (:ok (:compilation-result ((:message "undefined variable: COMMON-LISP-USER::X" :severity :warning :location (:location (:file "path/to/test.lisp") (:position 42) nil) :references nil)) nil 0.0061610001139342785 t "path/to/test.fasl")) 10)`

	answer, err := Decode(payload, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res, ok := answer.(ReturnCompilationResult)
	if !ok {
		t.Fatalf("got %T, want ReturnCompilationResult", answer)
	}
	if res.Continuation != 10 {
		t.Errorf("continuation: got %d, want 10", res.Continuation)
	}
	if res.Success {
		t.Error("expected success to be false")
	}
	if res.FaslFile != "path/to/test.fasl" {
		t.Errorf("fasl: got %q, want %q", res.FaslFile, "path/to/test.fasl")
	}
	if !res.LoadP {
		t.Error("expected loadp to be true")
	}
	if res.Duration < 0.006 || res.Duration > 0.007 {
		t.Errorf("duration: got %v", res.Duration)
	}
	if len(res.Notes) != 1 {
		t.Fatalf("notes: got %d, want 1", len(res.Notes))
	}
	note := res.Notes[0]
	if note.Severity != "warning" {
		t.Errorf("severity: got %q, want warning", note.Severity)
	}
	if note.Location == nil || note.Location.File != "path/to/test.lisp" || note.Location.Position != 42 {
		t.Errorf("location: got %+v", note.Location)
	}
}

func TestDecodeCompilationResultWithNotes(t *testing.T) {
	payload := `(:return (:ok (:compilation-result ((:message "The variable A is defined but never used." :severity :style-warning :location (:location (:file "path/to/test_project/test.lisp") (:position 562) nil) :references nil :source-context "--> SB-IMPL::%DEFUN SB-IMPL::%DEFUN SB-INT:NAMED-LAMBDA
    ==>
      #'(SB-INT:NAMED-LAMBDA TEST
            (A B)
          (BLOCK TEST (LIST 'B 'A)))
    ") (:message "The variable B is defined but never used." :severity :style-warning :location (:location (:file "path/to/test_project/test.lisp") (:position 562) nil) :references nil :source-context "==>
      #'(SB-INT:NAMED-LAMBDA TEST (A B))
    ") (:message "Duplicate definition for TEST found in one file." :severity :warning :location (:location (:file "path/to/test_project/test.lisp") (:position 617) nil) :references ((:ansi-cl :section (3 2 2 3))) :source-context "==>
      (EVAL-WHEN (:COMPILE-TOPLEVEL) (SB-C:%COMPILER-DEFUN 'TEST T NIL NIL))
    ") (:message "The variable A is defined but never used." :severity :style-warning :location (:location (:file "path/to/test_project/test.lisp") (:position 617) nil) :references nil :source-context "-->
    ")) nil 0.05266899988055229 t "path/to/test.fasl")) 1)`

	answer, err := Decode(payload, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res, ok := answer.(ReturnCompilationResult)
	if !ok {
		t.Fatalf("got %T, want ReturnCompilationResult", answer)
	}
	if res.Success {
		t.Error("expected success to be false")
	}
	if len(res.Notes) != 4 {
		t.Fatalf("notes: got %d, want 4", len(res.Notes))
	}
	if res.Notes[2].Message != "Duplicate definition for TEST found in one file." {
		t.Errorf("note 2 message: got %q", res.Notes[2].Message)
	}
}

func TestDecodeCompilationResultNoNotes(t *testing.T) {
	answer, err := Decode(`(:return (:ok (:compilation-result nil t 0.01 nil nil)) 4)`, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res := answer.(ReturnCompilationResult)
	if !res.Success || res.Notes != nil || res.FaslFile != "" {
		t.Errorf("got %+v", res)
	}
}

func TestDecodeFindDefinition(t *testing.T) {
	payload := `(:return (:ok (("(DEFUN POST)" (:location (:file "path/to/testing.lisp") (:position 41) (:snippet "(defun post ()       
    (format t \"post\"))
"))))) 3)`

	answer, err := Decode(payload, jumpToDef)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res, ok := answer.(ReturnFindDefinitionResult)
	if !ok {
		t.Fatalf("got %T, want ReturnFindDefinitionResult", answer)
	}
	if len(res.Definitions) != 1 {
		t.Fatalf("got %d definitions, want 1", len(res.Definitions))
	}
	def := res.Definitions[0]
	if def.Error != "" {
		t.Errorf("unexpected error %q", def.Error)
	}
	if def.Location == nil || def.Location.File != "path/to/testing.lisp" || def.Location.Position != 41 {
		t.Fatalf("location: got %+v", def.Location)
	}
	if want := "(defun post ()       \n    (format t \"post\"))\n"; def.Location.Snippet != want {
		t.Errorf("snippet: got %q, want %q", def.Location.Snippet, want)
	}
}

func TestDecodeFindDefinitionMultiple(t *testing.T) {
	payload := `(:return (:ok (("(DEFUN MAKE-LIST)" (:location (:file "a.lisp") (:position 1) (:snippet "(defun MAKE-LIST "))) ("(:DEFINE-SOURCE-TRANSFORM MAKE-LIST)" (:location (:file "b.lisp") (:position 1) nil)) ("(DECLAIM MAKE-LIST
        SB-C:DEFKNOWN)" (:location (:file "c.lisp") (:position 1) nil)))) 3)`

	answer, err := Decode(payload, jumpToDef)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res := answer.(ReturnFindDefinitionResult)
	if len(res.Definitions) != 3 {
		t.Fatalf("got %d definitions, want 3", len(res.Definitions))
	}
	for i, file := range []string{"a.lisp", "b.lisp", "c.lisp"} {
		def := res.Definitions[i]
		if def.Location == nil || def.Location.File != file {
			t.Errorf("definition %d: got %+v, want file %s", i, def.Location, file)
		}
		if def.Error != "" {
			t.Errorf("definition %d: unexpected error %q", i, def.Error)
		}
	}
}

func TestDecodeFindDefinitionError(t *testing.T) {
	payload := `(:return (:ok (("(DEFCONSTANT NIL)" (:error "msg")))) 13)`

	answer, err := Decode(payload, jumpToDef)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	res := answer.(ReturnFindDefinitionResult)
	if len(res.Definitions) != 1 {
		t.Fatalf("got %d definitions, want 1", len(res.Definitions))
	}
	def := res.Definitions[0]
	if def.Error != "msg" {
		t.Errorf("error: got %q, want %q", def.Error, "msg")
	}
	if def.Location != nil {
		t.Errorf("expected no location, got %+v", def.Location)
	}
}

func TestDecodeDefinitionsNeedContext(t *testing.T) {
	payload := `(:return (:ok (("(DEFUN F)" (:error "msg")))) 13)`
	answer, err := Decode(payload, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := answer.(Return); !ok {
		t.Errorf("without a pending action got %T, want Return", answer)
	}
}

func TestDecodeChannelSend(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, m ChannelMethod)
	}{
		{
			name:    "empty write-values",
			payload: "(:channel-send 1 (:write-values nil))",
			check: func(t *testing.T, m ChannelMethod) {
				wv, ok := m.(WriteValues)
				if !ok {
					t.Fatalf("got %T, want WriteValues", m)
				}
				if wv.Values == nil || len(wv.Values) != 0 {
					t.Errorf("got %+v, want empty values", wv.Values)
				}
			},
		},
		{
			name:    "write-values",
			payload: `(:channel-send 1 (:write-values (("3" 0 nil) ("\"abc\"" 1 "*"))))`,
			check: func(t *testing.T, m ChannelMethod) {
				wv := m.(WriteValues)
				if len(wv.Values) != 2 {
					t.Fatalf("got %d values, want 2", len(wv.Values))
				}
				if wv.Values[1].Value != `"abc"` || wv.Values[1].HistoryIndex != 1 || wv.Values[1].Symbol != "*" {
					t.Errorf("got %+v", wv.Values[1])
				}
			},
		},
		{
			name:    "package list values",
			payload: `(:channel-send 1 (:write-values (("(#<PACKAGE \"SLYNK-MATCH\"> #<PACKAGE \"COMMON-LISP\">)" 0 nil))))`,
			check: func(t *testing.T, m ChannelMethod) {
				wv := m.(WriteValues)
				if len(wv.Values) != 1 {
					t.Fatalf("got %d values, want 1", len(wv.Values))
				}
			},
		},
		{
			name:    "prompt",
			payload: `(:channel-send 1 (:prompt "MY-PACKAGE" "MY-PKG" 0 3 nil))`,
			check: func(t *testing.T, m ChannelMethod) {
				p, ok := m.(Prompt)
				if !ok {
					t.Fatalf("got %T, want Prompt", m)
				}
				if p.Package != "MY-PACKAGE" || p.Prompt != "MY-PKG" || p.HistoryLength != 3 || p.Condition != "" {
					t.Errorf("got %+v", p)
				}
			},
		},
		{
			name:    "prompt with condition",
			payload: `(:channel-send 1 (:prompt "CL-USER" "CL-USER" 1 0 "division by zero"))`,
			check: func(t *testing.T, m ChannelMethod) {
				p := m.(Prompt)
				if p.ErrorLevel != 1 || p.Condition != "division by zero" {
					t.Errorf("got %+v", p)
				}
			},
		},
		{
			name:    "write-string",
			payload: `(:channel-send 1 (:write-string "hello"))`,
			check: func(t *testing.T, m ChannelMethod) {
				if ws, ok := m.(ChannelWriteString); !ok || ws.Text != "hello" {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name:    "evaluation-aborted",
			payload: `(:channel-send 1 (:evaluation-aborted "The variable X is unbound."))`,
			check: func(t *testing.T, m ChannelMethod) {
				if ea, ok := m.(EvaluationAborted); !ok || ea.Message != "The variable X is unbound." {
					t.Errorf("got %#v", m)
				}
			},
		},
		{
			name:    "unknown passes raw text",
			payload: `(:channel-send 1 (:set-read-mode :finished-reading))`,
			check: func(t *testing.T, m ChannelMethod) {
				u, ok := m.(UnknownMethod)
				if !ok {
					t.Fatalf("got %T, want UnknownMethod", m)
				}
				if u.Raw != "(:set-read-mode :finished-reading)" {
					t.Errorf("raw: got %q", u.Raw)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := Decode(tt.payload, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			cs, ok := answer.(ChannelSend)
			if !ok {
				t.Fatalf("got %T, want ChannelSend", answer)
			}
			if cs.Channel != 1 {
				t.Errorf("channel: got %d, want 1", cs.Channel)
			}
			tt.check(t, cs.Method)
		})
	}
}

func TestDecodeDebug(t *testing.T) {
	payload := `(:debug 1 1 ("arithmetic error DIVISION-BY-ZERO signalled" "   [Condition of type DIVISION-BY-ZERO]" nil) (("RETRY" "Retry SLY mREPL evaluation request.") ("*ABORT" "Return to SLY's top level.")) ((0 "(SB-KERNEL::INTEGER-/-INTEGER 1 0)") (1 "(/ 1 0)" (:restartable t))) (12))`

	answer, err := Decode(payload, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	d, ok := answer.(Debug)
	if !ok {
		t.Fatalf("got %T, want Debug", answer)
	}
	if d.Thread != 1 || d.Level != 1 {
		t.Errorf("thread/level: got %d/%d", d.Thread, d.Level)
	}
	if d.Condition.Description != "arithmetic error DIVISION-BY-ZERO signalled" {
		t.Errorf("condition: got %q", d.Condition.Description)
	}
	if len(d.Restarts) != 2 || d.Restarts[1].Name != "*ABORT" {
		t.Errorf("restarts: got %+v", d.Restarts)
	}
	if len(d.Frames) != 2 || d.Frames[1].Description != "(/ 1 0)" || !d.Frames[1].Restartable || d.Frames[0].Restartable {
		t.Errorf("frames: got %+v", d.Frames)
	}
	if len(d.Continuations) != 1 || d.Continuations[0] != 12 {
		t.Errorf("continuations: got %v", d.Continuations)
	}
}

func TestDecodeDebugAtomContinuations(t *testing.T) {
	answer, err := Decode(`(:debug 3 2 ("c" "t" nil) nil nil nil)`, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	d := answer.(Debug)
	if len(d.Continuations) != 0 || len(d.Restarts) != 0 || len(d.Frames) != 0 {
		t.Errorf("got %+v", d)
	}
}

func TestDecodeDebugTransitions(t *testing.T) {
	answer, err := Decode("(:debug-activate 1 2 t)", nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if a, ok := answer.(DebugActivate); !ok || a.Thread != 1 || a.Level != 2 || !a.Select {
		t.Errorf("got %#v", answer)
	}

	answer, err = Decode("(:debug-return 1 2 nil)", nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if r, ok := answer.(DebugReturn); !ok || r.Thread != 1 || r.Level != 2 || r.Stepping {
		t.Errorf("got %#v", answer)
	}
}

func TestDecodeMisc(t *testing.T) {
	tests := []struct {
		payload string
		want    Answer
	}{
		{`(:write-string "hi")`, WriteString{Text: "hi"}},
		{`(:write-string "3" :repl-result)`, WriteString{Text: "3", ReplResult: true}},
		{`(:read-from-minibuffer 5 2 "Name: " nil)`, ReadFromMinibuffer{Thread: 5, Tag: 2, Prompt: "Name: "}},
		{`(:read-from-minibuffer 5 2 "Name: " "bob")`, ReadFromMinibuffer{Thread: 5, Tag: 2, Prompt: "Name: ", Initial: "bob"}},
		{`(:indentation-update (("defsystem" . 1)))`, IndentationUpdate{}},
		{`(:ping 1 1)`, IndentationUpdate{}},
		{`garbage`, IndentationUpdate{}},
		{``, IndentationUpdate{}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			answer, err := Decode(tt.payload, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if answer != tt.want {
				t.Errorf("got %#v, want %#v", answer, tt.want)
			}
		})
	}
}

func TestDecodeNewFeatures(t *testing.T) {
	answer, err := Decode(`(:new-features (:slynk :sbcl :x86-64))`, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	nf := answer.(NewFeatures)
	if len(nf.Features) != 3 || nf.Features[1] != ":sbcl" {
		t.Errorf("got %v", nf.Features)
	}
}

func TestDecodeMalformed(t *testing.T) {
	payloads := []string{
		`(:return (:ok nil))`,
		`(:return (:ok nil) x)`,
		`(:return (:weird nil) 1)`,
		`(:return (:ok "unterminated) 1)`,
		`(:debug 1 1 ("c" "t") nil nil)`,
		`(:debug x 1 ("c" "t") nil nil nil)`,
		`(:debug 1 1 ("c" "t") nil ((x "frame")) nil)`,
		`(:debug-return 1)`,
		`(:channel-send x (:write-string "a"))`,
		`(:channel-send 1 (:prompt "PKG"))`,
		`(:channel-send 1 :atom)`,
		`(:write-string nil)`,
		`(:read-from-minibuffer 1 2)`,
		`(:return (:ok (:compilation-result nil t "slow")) 1)`,
	}

	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			answer, err := Decode(payload, nil)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got answer %#v err %v", answer, err)
			}
			if decodeErr.Payload != payload {
				t.Errorf("payload: got %q, want %q", decodeErr.Payload, payload)
			}
		})
	}
}

func TestDecodeMalformedDefinitions(t *testing.T) {
	_, err := Decode(`(:return (:ok (("label" (:elsewhere 1)))) 3)`, jumpToDef)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Prefix != ":return" {
		t.Errorf("prefix: got %q", decodeErr.Prefix)
	}
}
