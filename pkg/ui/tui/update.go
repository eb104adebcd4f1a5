package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"jiraharvest/pkg/harvester"
)

// Message types for the TUI

// SourceStartedMsg is sent when the harvester begins a source
type SourceStartedMsg struct {
	Source string
	Offset int
}

// PageMsg is sent after a page is durably recorded
type PageMsg struct {
	Event harvester.PageEvent
}

// SourceFinishedMsg is sent when a source is exhausted or halted
type SourceFinishedMsg struct {
	Result harvester.Result
}

// DoneMsg is sent once the whole run is over
type DoneMsg struct {
	Report *harvester.Report
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// quitDelay keeps the final dashboard on screen briefly after a run.
const quitDelay = 1500 * time.Millisecond

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.mu.Unlock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.Done() {
			return m, nil
		}
		return m, tickCmd()

	case SourceStartedMsg:
		m.StartSource(msg.Source, msg.Offset)
		if msg.Offset > 0 {
			m.AddLogMessage("INFO", fmt.Sprintf("%s resuming at offset %d", msg.Source, msg.Offset))
		} else {
			m.AddLogMessage("INFO", fmt.Sprintf("%s starting", msg.Source))
		}
		return m, nil

	case PageMsg:
		m.RecordPage(msg.Event)
		return m, nil

	case SourceFinishedMsg:
		m.FinishSource(msg.Result)
		res := msg.Result
		if res.Halted() {
			m.AddLogMessage("ERROR", fmt.Sprintf("%s halted at offset %d: %v", res.Source, res.Offset, res.Err))
		} else {
			m.AddLogMessage("SUCCESS", fmt.Sprintf("%s exhausted at offset %d (+%d records)", res.Source, res.Offset, res.Records))
		}
		return m, nil

	case DoneMsg:
		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		if msg.Report != nil && len(msg.Report.Halted()) > 0 {
			m.AddLogMessage("WARN", fmt.Sprintf("%d source(s) halted, rerun to resume", len(msg.Report.Halted())))
		} else {
			m.AddLogMessage("SUCCESS", "Harvest complete")
		}
		return m, tea.Tick(quitDelay, func(time.Time) tea.Msg { return tea.Quit() })

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if !m.Done() && m.onQuit != nil {
			m.AddLogMessage("WARN", "Interrupted by user, finishing current page")
			m.onQuit()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
