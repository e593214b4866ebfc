package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"emberwatch/domain"
	"emberwatch/state"
	"emberwatch/stream"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

	connectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	connectingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	disconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	hpHealthyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	hpWoundedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	hpCriticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("EMBERWATCH") + "  " + renderStatusBar(m.status, m.commander.Running(), m.spinner.View()))
	b.WriteString("\n\n")

	left := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render(renderParty(m.snap)),
		sectionStyle.Render(renderAgents(m.snap.Agents)),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render(renderLogs(m.snap.Logs, logLines(m.height))),
		sectionStyle.Render(renderScreenInfo(m.snap)),
	)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString(faintStyle.Render(renderHelp(m.keys)))
	return b.String()
}

func logLines(height int) int {
	if height <= 0 {
		return 10
	}
	lines := height - 14
	if lines < 5 {
		return 5
	}
	if lines > state.MaxLogEntries {
		return state.MaxLogEntries
	}
	return lines
}

func renderStatusBar(status stream.Status, running bool, spin string) string {
	var conn string
	switch status {
	case stream.StatusConnected:
		conn = connectedStyle.Render("● connected")
	case stream.StatusConnecting:
		conn = connectingStyle.Render(spin + "connecting")
	case stream.StatusError:
		conn = errorStyle.Render("✗ error (retrying)")
	default:
		conn = disconnectedStyle.Render("○ disconnected")
	}

	session := faintStyle.Render("session stopped")
	if running {
		session = connectedStyle.Render("session running")
	}
	return conn + "  " + session
}

func renderParty(snap state.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Party") + "\n")
	if !snap.HasGame {
		b.WriteString(faintStyle.Render("waiting for game state..."))
		return b.String()
	}

	game := snap.Game
	b.WriteString(fmt.Sprintf("₽%d  badges %d/8  %s\n", game.Money, game.BadgeCount(), game.Position.Location))
	if game.InBattle {
		line := "⚔ in battle"
		if game.EnemyPokemon != nil {
			line = fmt.Sprintf("⚔ vs %s Lv.%d", game.EnemyPokemon.Nickname, game.EnemyPokemon.Level)
		}
		b.WriteString(errorStyle.Render(line) + "\n")
	}
	for _, p := range game.Party.Pokemon {
		b.WriteString(renderPokemonLine(p) + "\n")
	}
	if len(game.Party.Pokemon) == 0 {
		b.WriteString(faintStyle.Render("(empty party)"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPokemonLine(p domain.PokemonSummary) string {
	hp := fmt.Sprintf("%d/%d", p.CurrentHP, p.MaxHP)
	style := hpHealthyStyle
	switch {
	case p.IsFainted:
		style = faintStyle
		hp = "FNT"
	case p.HPPercentage < 25:
		style = hpCriticalStyle
	case p.HPPercentage < 60:
		style = hpWoundedStyle
	}
	return fmt.Sprintf("%-10s Lv.%-3d %s %s", p.Nickname, p.Level, style.Render(hpBar(p.HPPercentage)), style.Render(hp))
}

// hpBar は10マスのHPゲージを描きます。
func hpBar(percentage float64) string {
	filled := int(percentage / 10)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + "]"
}

func renderAgents(agents []domain.AgentDescriptor) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Agents") + "\n")
	for _, agent := range agents {
		status := faintStyle.Render(string(agent.Status))
		switch agent.Status {
		case domain.AgentStatusActive:
			status = connectedStyle.Render(string(agent.Status))
		case domain.AgentStatusBusy:
			status = connectingStyle.Render(string(agent.Status))
		}
		b.WriteString(fmt.Sprintf("%s %-18s %s\n", agent.Icon, agent.Name, status))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderLogs はログの末尾limit件を古い順で描きます。
func renderLogs(logs []domain.LogEntry, limit int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Agent Log") + "\n")
	if len(logs) == 0 {
		b.WriteString(faintStyle.Render("no activity yet"))
		return b.String()
	}

	start := 0
	if len(logs) > limit {
		start = len(logs) - limit
	}
	for _, entry := range logs[start:] {
		ts := faintStyle.Render(entry.Timestamp.Format("15:04:05"))
		line := fmt.Sprintf("%s %s: %s", ts, entry.Agent, entry.Action)
		if entry.Details != "" {
			line += faintStyle.Render(" · " + entry.Details)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderScreenInfo(snap state.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Screen") + "\n")
	if snap.ScreenAt.IsZero() {
		b.WriteString(faintStyle.Render("no capture yet"))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("last capture %s (%d KB)", snap.ScreenAt.Format("15:04:05"), snap.ScreenKB))
	return b.String()
}

func renderHelp(keys keyMap) string {
	parts := make([]string, 0, 8)
	for _, binding := range keys.helpLine() {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	parts = append(parts, "arrows/a/b buttons")
	return strings.Join(parts, " · ")
}
