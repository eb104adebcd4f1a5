package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jiraharvest/pkg/harvester"
)

// RowState is the dashboard's view of a source. It extends harvester.State
// with a pending state for sources the run has not reached yet.
type RowState int

const (
	RowPending RowState = iota
	RowActive
	RowExhausted
	RowHalted
)

// SourceRow tracks one source on the dashboard
type SourceRow struct {
	Source      string
	State       RowState
	StartOffset int
	Offset      int
	Total       int
	Records     int
	Pages       int
	StartTime   time.Time
	Duration    time.Duration
	Err         error
}

// Percent reports how far the row is through its reported total.
func (r *SourceRow) Percent() float64 {
	if r.Total <= 0 {
		if r.State == RowExhausted {
			return 1
		}
		return 0
	}
	p := float64(r.Offset) / float64(r.Total)
	if p > 1 {
		p = 1
	}
	return p
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model behind the harvest dashboard.
type Model struct {
	spinner      spinner.Model
	progressBars map[string]progress.Model

	rows  map[string]*SourceRow
	order []string

	totalRecords     int
	totalPages       int
	sessionStartTime time.Time
	requestsPerMin   int
	done             bool

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	// onQuit runs when the user quits before the run finished.
	onQuit func()

	mu sync.RWMutex
}

// NewModel creates a dashboard for the given sources in harvest order.
// requestsPerMin is the configured pacing budget, 0 meaning unpaced.
func NewModel(sources []string, requestsPerMin int) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	m := &Model{
		spinner:          s,
		progressBars:     make(map[string]progress.Model),
		rows:             make(map[string]*SourceRow),
		sessionStartTime: time.Now(),
		requestsPerMin:   requestsPerMin,
		maxLogMessages:   50,
	}
	for _, source := range sources {
		m.addSource(source)
	}
	return m
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// addSource registers a row; callers hold the lock or own the model.
func (m *Model) addSource(source string) *SourceRow {
	if row, ok := m.rows[source]; ok {
		return row
	}
	row := &SourceRow{Source: source}
	m.rows[source] = row
	m.order = append(m.order, source)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 30
	m.progressBars[source] = p
	return row
}

// StartSource marks a source active at its resume offset.
func (m *Model) StartSource(source string, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.addSource(source)
	row.State = RowActive
	row.StartOffset = offset
	row.Offset = offset
	row.StartTime = time.Now()
}

// RecordPage applies a processed page to its source row.
func (m *Model) RecordPage(e harvester.PageEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.addSource(e.Source)
	row.Offset = e.Offset
	row.Total = e.Total
	row.Records += e.Records
	row.Pages++
	m.totalRecords += e.Records
	m.totalPages++
}

// FinishSource records a source's final state.
func (m *Model) FinishSource(res harvester.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.addSource(res.Source)
	row.Offset = res.Offset
	if res.Total > 0 {
		row.Total = res.Total
	}
	row.Duration = res.Duration
	row.Err = res.Err
	if res.State == harvester.StateHalted {
		row.State = RowHalted
	} else {
		row.State = RowExhausted
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Row returns a copy of a source row.
func (m *Model) Row(source string) (SourceRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[source]
	if !ok {
		return SourceRow{}, false
	}
	return *row, true
}

// RowsInState returns the sources currently in state, in harvest order.
func (m *Model) RowsInState(state RowState) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, source := range m.order {
		if m.rows[source].State == state {
			out = append(out, source)
		}
	}
	return out
}

// Totals returns records and pages processed so far.
func (m *Model) Totals() (records, pages int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRecords, m.totalPages
}

// Done reports whether the run has finished.
func (m *Model) Done() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// pagesPerMinute is the observed fetch pace since the session started.
func (m *Model) pagesPerMinute() float64 {
	elapsed := time.Since(m.sessionStartTime).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.totalPages) / elapsed
}
