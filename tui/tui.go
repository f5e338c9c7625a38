package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/nathoo/responserules/cli"
	"github.com/nathoo/responserules/engine"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool // true for echoed queries
	isSystem bool // true for meta-command output
}

// Model is the Bubble Tea model of the query console.
type Model struct {
	session *cli.Session

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine // accumulated output lines (unstyled, for re-wrapping)

	width    int
	height   int
	ready    bool
	quitting bool
	lastCmd  string
}

// outputMsg carries output into the Update loop.
type outputMsg struct {
	input    string   // echoed query (empty for banners)
	lines    []string // output lines
	isSystem bool     // true for meta-command output
}

// reloadMsg reports a reload triggered by the script watcher.
type reloadMsg struct {
	err error
}

// New creates a TUI model over a session.
func New(s *cli.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "concept=TLK_HURT health=20   (/help)"
	ti.Focus()
	ti.CharLimit = 512
	ti.PromptStyle = styleInputPrompt

	return Model{
		session: s,
		input:   ti,
		history: NewHistory(100),
	}
}

// Run starts the Bubble Tea program. When w is not nil it is started for the
// lifetime of the program and its reloads are reported in the console.
func Run(s *cli.Session, w *engine.Watcher) error {
	m := New(s)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if w != nil {
		w.OnReload = func(err error) { p.Send(reloadMsg{err: err}) }
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		w.Start(ctx)
		defer w.Stop()
	}
	_, err := p.Run()
	return err
}

// Init returns the initial command that produces the banner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.banner())
}

func (m Model) banner() tea.Cmd {
	return func() tea.Msg {
		st := m.session.System.Stats()
		return outputMsg{
			lines: []string{
				fmt.Sprintf("%s: %d rule(s), %d criteria, %d response group(s).",
					st.Script, st.Rules, st.Criteria, st.Groups),
				"Type facts to query, /help for commands.",
			},
			isSystem: true,
		}
	}
}

// Update handles messages (key presses, window resize, output, reloads).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := m.height - 2 // 1 status bar + 1 input line
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}

		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()

		case "up":
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
				m.history.ResetCursor()
			}
			return m, nil

		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case outputMsg:
		m = m.appendOutput(msg)

	case reloadMsg:
		lines := m.reloadLines(msg.err)
		if id := m.session.Reloaded(); id != uuid.Nil {
			lines = append(lines, fmt.Sprintf("Instance %s released.", id))
		}
		m = m.appendOutput(outputMsg{lines: lines, isSystem: true})
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) reloadLines(err error) []string {
	st := m.session.System.Stats()
	if err != nil {
		return []string{fmt.Sprintf("Script changed, reload reported problems: %v", err)}
	}
	return []string{fmt.Sprintf("Script changed, reloaded %d rule(s).", st.Rules)}
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	// Handle "again" / "g".
	lower := strings.ToLower(input)
	if lower == "again" || lower == "g" {
		if m.lastCmd == "" {
			m = m.appendOutput(outputMsg{
				input: input, lines: []string{"Nothing to repeat."}, isSystem: true,
			})
			return m, nil
		}
		input = m.lastCmd
	} else if !strings.HasPrefix(input, "/") {
		m.lastCmd = input
	}

	out := m.session.Exec(input)
	m = m.appendOutput(outputMsg{input: input, lines: out.Lines, isSystem: out.System})
	if out.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// appendOutput adds lines to the console and refreshes the viewport.
func (m Model) appendOutput(msg outputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{
			text: "> " + msg.input, isInput: true,
		})
	}

	for _, line := range msg.lines {
		rl := rawLine{text: line, isSystem: msg.isSystem}
		if !msg.isSystem {
			rl.kind = classifyLine(line)
		}
		m.rawLines = append(m.rawLines, rl)
	}

	// Blank line separator between queries.
	m.rawLines = append(m.rawLines, rawLine{})

	m.refreshViewport()

	return m
}

// refreshViewport re-wraps and re-styles all raw lines at the current width
// and updates the viewport content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.width
	if width < 10 {
		width = 10
	}

	var styled []string
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}

		wrapped := wordWrap(rl.text, width)

		switch {
		case rl.isInput:
			styled = append(styled, styleQuery.Render(wrapped))
		case rl.isSystem:
			styled = append(styled, styledSystemMsg(wrapped))
		default:
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// renderLineKind applies the style for a given lineKind.
func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindSpeech:
		return styledResponse(line, styleSpeech)
	case kindScene:
		return styledResponse(line, styleScene)
	case kindDetail:
		return styleDetail.Render(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(line)
	default:
		return styledResponse(line, styleText)
	}
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries. Leading indentation is kept on the first line.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	indent := text[:len(text)-len(strings.TrimLeft(text, " "))]
	var result strings.Builder
	result.WriteString(indent)
	lineLen := len(indent)

	for i, word := range strings.Fields(text) {
		wLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen += wLen
			continue
		}

		if lineLen+1+wLen > width {
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wLen
		}
	}

	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
