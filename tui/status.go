package tui

import (
	"fmt"
	"path"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// scriptDisplayName shortens a script path for the status bar.
// "scripts/talker/response_rules.txt" -> "response_rules".
func scriptDisplayName(p string) string {
	if p == "" {
		return "(no script)"
	}
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// renderStatusBar produces a full-width inverted status line showing the
// script, rule count, last matched rule, active instance and RNG position.
func (m Model) renderStatusBar() string {
	st := m.session.Target().Stats()

	left := fmt.Sprintf(" %s | Rules: %d", scriptDisplayName(st.Script), st.Rules)
	if m.session.LastRule != "" {
		left += " | Last: " + m.session.LastRule
	}

	right := fmt.Sprintf("RNG:%d ", st.RNGPosition)
	if id := m.session.InstanceID(); id != uuid.Nil {
		candidate := fmt.Sprintf("Inst: %s | RNG:%d ", id.String()[:8], st.RNGPosition)
		if lipgloss.Width(left)+lipgloss.Width(candidate)+2 < m.width {
			right = candidate
		}
	}
	if m.session.Trace {
		right = "trace | " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}
