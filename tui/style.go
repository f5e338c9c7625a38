package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles used throughout the TUI.
var (
	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	styleText = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleKind = lipgloss.NewStyle().
			Bold(true)

	styleSpeech = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleScene = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))

	styleDetail = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleQuery = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// lineKind identifies the type of an output line for styling.
type lineKind int

const (
	kindText lineKind = iota
	kindSpeech
	kindScene
	kindDetail
	kindSystem
	kindError
	kindTrace
)

// classifyLine determines what kind of output line this is.
func classifyLine(line string) lineKind {
	switch {
	case strings.HasPrefix(line, "[trace]"):
		return kindTrace
	case strings.HasPrefix(line, "[error]"), line == "(no response)":
		return kindError
	case strings.HasPrefix(line, "[speak]"), strings.HasPrefix(line, "[sentence]"):
		return kindSpeech
	case strings.HasPrefix(line, "[scene]"):
		return kindScene
	case strings.HasPrefix(line, "  "):
		return kindDetail
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	default:
		return kindText
	}
}

// styledResponse renders "[kind] value" with the kind tag bold and the value
// in the given style.
func styledResponse(line string, style lipgloss.Style) string {
	end := strings.IndexByte(line, ']')
	if !strings.HasPrefix(line, "[") || end < 0 {
		return style.Render(line)
	}
	return styleKind.Render(line[:end+1]) + style.Render(line[end+1:])
}

// styledSystemMsg renders a system message in gray with brackets.
func styledSystemMsg(text string) string {
	return styleSystem.Render("[" + text + "]")
}
