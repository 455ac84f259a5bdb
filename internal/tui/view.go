package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/duckmesh/dbchat/internal/transcript"
)

func (m Model) renderHistory() string {
	turns := m.session.Transcript()
	if m.pending != "" {
		last := turns[len(turns)-1]
		if last.Role != transcript.RoleHuman || last.Text != m.pending {
			turns = append(turns, transcript.Turn{Role: transcript.RoleHuman, Text: m.pending})
		}
	}

	var sb strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case transcript.RoleHuman:
			sb.WriteString(m.styles.Human.Render("You") + "\n")
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		default:
			sb.WriteString(m.styles.Assistant.Render("Assistant") + "\n")
			sb.WriteString(m.renderMarkdown(turn.Text))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderMarkdown falls back to the raw text if glamour fails or panics.
func (m Model) renderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()
	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return content
}

func (m Model) renderSidebar() string {
	params := m.opts.Params
	dialect := params.Dialect
	if current := m.session.Dialect(); current != "" {
		dialect = current
	}

	status := m.styles.Connected.Render(m.status)
	if m.statusErr {
		status = m.styles.Error.Render(m.status)
	} else if !m.session.Connected() {
		status = m.styles.Muted.Render(m.status)
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("dbchat") + "\n\n")
	fmt.Fprintf(&sb, "%s\n%s\n\n", m.styles.Label.Render("Database"), dialect.DisplayName())
	if params.Host != "" {
		fmt.Fprintf(&sb, "%s\n%s\n\n", m.styles.Label.Render("Host"), params.Host)
	}
	if params.Database != "" {
		fmt.Fprintf(&sb, "%s\n%s\n\n", m.styles.Label.Render("Name"), params.Database)
	}
	fmt.Fprintf(&sb, "%s\n%s\n", m.styles.Label.Render("Status"), status)
	if m.lastSQL != "" {
		fmt.Fprintf(&sb, "\n%s\n%s\n", m.styles.Label.Render("Last SQL"), m.styles.Muted.Render(m.lastSQL))
	}
	sb.WriteString("\n" + m.styles.Muted.Render("enter send · ctrl+r connect · esc quit"))

	height := m.height - 2
	if height < 1 {
		height = 1
	}
	return m.styles.Sidebar.Width(sidebarWidth - 4).Height(height).Render(sb.String())
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	inputLine := m.input.View()
	if m.awaiting {
		inputLine = m.spinner.View() + " " + m.styles.Muted.Render("thinking...")
	}
	chat := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.styles.Input.Width(m.viewport.Width).Render(inputLine),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), " ", chat)
}
