package cli

import (
	"fmt"
	"strings"

	"github.com/bastiangx/slynkserve/pkg/swank"
	"github.com/charmbracelet/lipgloss"
)

// maxFrames caps how much of a backtrace the console prints.
const maxFrames = 8

var (
	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	errorStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#b4637a", Dark: "#eb6f92"})
	noteStyle = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#797593", Dark: "#908caa"})
)

// styleLines renders each line on its own so multi-line text is not padded.
func styleLines(style lipgloss.Style, text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Render formats an answer for the console. Housekeeping answers render
// as the empty string.
func Render(a swank.Answer) string {
	switch v := a.(type) {
	case swank.WriteString:
		if v.ReplResult {
			return styleLines(resultStyle, strings.TrimRight(v.Text, "\n"))
		}
		return strings.TrimRight(v.Text, "\n")
	case swank.Return:
		if v.Status == swank.StatusAbort {
			return styleLines(errorStyle, "; Aborted "+v.Value)
		}
		return styleLines(resultStyle, v.Value)
	case swank.Notify:
		if v.Error {
			return styleLines(errorStyle, v.Text)
		}
		return styleLines(noteStyle, v.Text)
	case swank.ChannelSend:
		return renderMethod(v.Method)
	case swank.Debug:
		return renderDebug(v)
	case swank.DebugReturn:
		return styleLines(noteStyle, fmt.Sprintf("; Leaving debugger level %d", v.Level))
	case swank.ReturnFindDefinitionResult:
		return renderDefinitions(v.Definitions)
	case swank.ReturnCompilationResult:
		return renderCompilation(v)
	case swank.ReadFromMinibuffer:
		return styleLines(noteStyle, v.Prompt)
	case swank.ResolvePending:
		items, err := v.Items()
		if err != nil {
			return styleLines(errorStyle, err.Error())
		}
		return strings.Join(items, " ")
	case swank.ProtocolError:
		return styleLines(errorStyle, fmt.Sprintf("; Protocol error: %v", v.Err))
	}
	return ""
}

func renderMethod(m swank.ChannelMethod) string {
	switch v := m.(type) {
	case swank.WriteValues:
		if len(v.Values) == 0 {
			return styleLines(noteStyle, "; No values")
		}
		values := make([]string, len(v.Values))
		for i, wv := range v.Values {
			values[i] = wv.Value
		}
		return styleLines(resultStyle, strings.Join(values, "\n"))
	case swank.ChannelWriteString:
		return strings.TrimRight(v.Text, "\n")
	case swank.EvaluationAborted:
		msg := "; Evaluation aborted"
		if v.Message != "" {
			msg += " on " + v.Message
		}
		return styleLines(errorStyle, msg)
	}
	return ""
}

func renderDebug(d swank.Debug) string {
	var b strings.Builder
	b.WriteString(errorStyle.Render(d.Condition.Description))
	if d.Condition.Type != "" {
		b.WriteString("\n" + noteStyle.Render("   "+d.Condition.Type))
	}
	fmt.Fprintf(&b, "\n\nRestarts (level %d, use ,restart N):", d.Level)
	for i, r := range d.Restarts {
		fmt.Fprintf(&b, "\n %2d: [%s] %s", i, r.Name, r.Description)
	}
	if len(d.Frames) > 0 {
		b.WriteString("\n\nBacktrace:")
		for i, f := range d.Frames {
			if i == maxFrames {
				fmt.Fprintf(&b, "\n  ... %d more", len(d.Frames)-maxFrames)
				break
			}
			fmt.Fprintf(&b, "\n %2d: %s", f.Index, f.Description)
		}
	}
	return b.String()
}

func renderDefinitions(defs []swank.Definition) string {
	if len(defs) == 0 {
		return styleLines(noteStyle, "; No definitions")
	}
	lines := make([]string, 0, len(defs))
	for _, d := range defs {
		switch {
		case d.Location != nil:
			lines = append(lines, fmt.Sprintf("%s  %s:%d", d.Label, d.Location.File, d.Location.Position))
		default:
			lines = append(lines, fmt.Sprintf("%s  %s", d.Label, errorStyle.Render(d.Error)))
		}
	}
	return strings.Join(lines, "\n")
}

func renderCompilation(r swank.ReturnCompilationResult) string {
	var b strings.Builder
	status := "compiled"
	if !r.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "; Compilation %s in %.2fs", status, r.Duration)
	for _, n := range r.Notes {
		fmt.Fprintf(&b, "\n;   %s: %s", n.Severity, n.Message)
	}
	if r.Success {
		return styleLines(noteStyle, b.String())
	}
	return styleLines(errorStyle, b.String())
}
