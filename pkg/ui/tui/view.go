package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	m.mu.RLock()
	width, height := m.width, m.height
	m.mu.RUnlock()

	if width == 0 || height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderLogo(width))

	columnWidth := (width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(columnWidth),
		m.renderSourcesPanel(columnWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderPacePanel(columnWidth),
		m.renderLogsPanel(columnWidth, height),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp(width))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(width).Height(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderLogo(width int) string {
	logo := `
   _ _                 _                           _
  (_|_)_ __ __ _  ___ | |__   __ _ _ ____   _____  ___| |_
  | | | '__/ _' |/ __|| '_ \ / _' | '__\ \ / / _ \/ __| __|
  | | | | | (_| |\__ \| | | | (_| | |   \ V /  __/\__ \ |_
 _/ |_|_|  \__,_||___/|_| |_|\__,_|_|    \_/ \___||___/\__|
|__/          ISSUE CORPUS HARVESTER`

	return logoStyle.Width(width).Render(logo)
}

func (m *Model) renderStatsPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" HARVEST STATS ")

	exhausted, halted := 0, 0
	for _, row := range m.rows {
		switch row.State {
		case RowExhausted:
			exhausted++
		case RowHalted:
			halted++
		}
	}

	status := m.spinner.View() + " harvesting"
	if m.done {
		status = successStyle.Render("✓ finished")
	}

	stats := []string{
		status,
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Session Time:"), statsValueStyle.Render(formatDuration(time.Since(m.sessionStartTime)))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Records Written:"), statsValueStyle.Render(fmt.Sprintf("%d", m.totalRecords))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Pages Fetched:"), statsValueStyle.Render(fmt.Sprintf("%d", m.totalPages))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Sources:"), statsValueStyle.Render(fmt.Sprintf("%d/%d exhausted", exhausted, len(m.order)))),
	}
	if halted > 0 {
		stats = append(stats, errorStyle.Render(fmt.Sprintf("✗ %d halted", halted)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func (m *Model) renderSourcesPanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" SOURCES ")
	if len(m.order) == 0 {
		content := lipgloss.NewStyle().Foreground(dimWhite).Render("No sources configured")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var items []string
	for _, source := range m.order {
		items = append(items, m.renderSourceRow(m.rows[source], width-8))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

// renderSourceRow draws one source; the caller holds the read lock.
func (m *Model) renderSourceRow(row *SourceRow, width int) string {
	var label string
	switch row.State {
	case RowPending:
		return sourcePendingStyle.Render("• " + row.Source + " (pending)")
	case RowActive:
		label = sourceActiveStyle.Render(m.spinner.View() + " " + row.Source)
	case RowExhausted:
		label = sourceDoneStyle.Render("✓ " + row.Source)
	case RowHalted:
		label = sourceHaltedStyle.Render("✗ " + row.Source)
	}

	total := "?"
	if row.Total > 0 {
		total = fmt.Sprintf("%d", row.Total)
	}
	info := fmt.Sprintf("%s %s",
		label,
		lipgloss.NewStyle().Foreground(dimWhite).Render(fmt.Sprintf("%d/%s  +%d records", row.Offset, total, row.Records)),
	)

	bar, ok := m.progressBars[row.Source]
	if !ok {
		return info
	}
	if width > 10 {
		bar.Width = width - 4
	}
	lines := []string{info, "  " + bar.ViewAs(row.Percent())}
	if row.State == RowHalted && row.Err != nil {
		lines = append(lines, errorStyle.Render("  "+truncate(row.Err.Error(), width-4)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderPacePanel(width int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" REQUEST PACE ")
	pace := m.pagesPerMinute()

	if m.requestsPerMin <= 0 {
		content := fmt.Sprintf("%s %s\n%s",
			statsLabelStyle.Render("Observed:"),
			statsValueStyle.Render(fmt.Sprintf("%.1f pages/min", pace)),
			lipgloss.NewStyle().Foreground(dimWhite).Render("Pacing disabled"),
		)
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	usage := pace / float64(m.requestsPerMin) * 100
	if usage > 100 {
		usage = 100
	}

	barWidth := width - 8
	if barWidth < 1 {
		barWidth = 1
	}
	filled := int(usage * float64(barWidth) / 100)
	style := GetPaceStyle(usage)
	bar := style.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled))

	content := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Observed:"),
			style.Render(fmt.Sprintf("%.1f/%d per min (%.0f%%)", pace, m.requestsPerMin, usage))),
		bar,
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

func (m *Model) renderLogsPanel(width, height int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := lipgloss.NewStyle().Foreground(dimWhite).Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	logsHeight := height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp(width int) string {
	help := `
  Keys:
    q/Q      - Stop after the current page and quit
    ctrl+l   - Clear the log panel
    ?        - Toggle this help

  Status:
    ` + successStyle.Render("✓") + `        - Source exhausted
    ` + warningStyle.Render("•") + `        - Source pending
    ` + errorStyle.Render("✗") + `        - Source halted, rerun to resume
`

	return panelStyle.Width(width).Render(help)
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// formatDuration formats a duration as hh:mm:ss or mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
