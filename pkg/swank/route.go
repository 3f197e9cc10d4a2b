package swank

import "fmt"

// CompileFailedText is the notification sent when compile-and-load fails.
const CompileFailedText = "Failed to compile file."

// Route derives the client-side answers implied by a decoded answer and
// the action registered for its continuation, plus an optional follow-up
// request to send. Derived answers are delivered before the answer itself.
func Route(answer Answer, lookup LookupFunc) (derived []Answer, followUp Message) {
	if lookup == nil {
		return nil, nil
	}

	switch a := answer.(type) {
	case Return:
		action, ok := lookup(a.Continuation)
		if !ok {
			return nil, nil
		}
		return routeReturn(a, action), nil

	case ReturnCompilationResult:
		action, ok := lookup(a.Continuation)
		if !ok || action.Kind != ActionLoadCompiled {
			return nil, nil
		}
		if !a.Success {
			return []Answer{Notify{Text: CompileFailedText, Error: true}}, nil
		}
		if a.FaslFile != "" {
			return nil, LoadFile{Path: a.FaslFile}
		}
	}
	return nil, nil
}

func routeReturn(r Return, action PendingAction) []Answer {
	failed := r.Status != StatusOk

	switch action.Kind {
	case ActionPrintValue:
		return []Answer{printTo(action.Target, r.Value, failed)}
	case ActionPrint:
		return []Answer{printTo(action.Target, action.Message, failed)}
	case ActionJumpToDefinition, ActionLoadCompiled:
		return []Answer{Notify{Text: r.Value, Error: failed}}
	case ActionResolvePackages:
		return resolve(action.Promise, ParsePackageList(r.Value), nil)
	case ActionResolveSymbols:
		if failed {
			return resolve(action.Promise, nil, fmt.Errorf("listing symbols aborted: %s", r.Value))
		}
		symbols, err := ParseSymbolList(r.Value)
		return resolve(action.Promise, symbols, err)
	}
	return nil
}

func printTo(target Target, text string, failed bool) Answer {
	if target == ToNotification {
		return Notify{Text: text, Error: failed}
	}
	return WriteString{Text: text}
}

// resolve always settles the promise so the UI never waits forever; an
// error additionally produces a notification.
func resolve(promise uint64, items []string, cause error) []Answer {
	if items == nil {
		items = []string{}
	}
	var out []Answer
	if cause != nil {
		out = append(out, Notify{Text: cause.Error(), Error: true})
	}
	data, err := EncodeItems(items)
	if err != nil {
		return append(out, Notify{Text: err.Error(), Error: true})
	}
	return append(out, ResolvePending{Promise: promise, Data: data})
}
