package tui

import (
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"jiraharvest/pkg/harvester"
)

// logQueueSize bounds the log lines held while the program is not reading.
const logQueueSize = 256

// TUI represents the terminal user interface. It implements
// harvester.Observer so it can be handed straight to the harvester.
type TUI struct {
	program *tea.Program
	model   *Model
	send    func(tea.Msg)
	logs    chan tea.Msg
}

var _ harvester.Observer = (*TUI)(nil)

// NewTUI creates a dashboard for sources. onQuit runs when the user quits
// before the run finished, and is normally the run's cancel function.
func NewTUI(sources []string, requestsPerMin int, onQuit func()) *TUI {
	model := NewModel(sources, requestsPerMin)
	model.onQuit = onQuit
	program := tea.NewProgram(model, tea.WithAltScreen())

	return &TUI{
		program: program,
		model:   model,
		send:    program.Send,
		logs:    make(chan tea.Msg, logQueueSize),
	}
}

// Start runs the TUI until the user quits or the run finishes. Log lines
// written before Start are queued and shown once the program is up.
func (t *TUI) Start() error {
	done := make(chan struct{})
	defer close(done)
	go t.forwardLogs(done)

	_, err := t.program.Run()
	return err
}

// forwardLogs hands queued log lines to the program until done is closed.
func (t *TUI) forwardLogs(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-t.logs:
			t.Send(msg)
		}
	}
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.send != nil {
		t.send(msg)
	}
}

// Model exposes the dashboard state.
func (t *TUI) Model() *Model {
	return t.model
}

// SourceStarted implements harvester.Observer
func (t *TUI) SourceStarted(source string, offset int) {
	t.Send(SourceStartedMsg{Source: source, Offset: offset})
}

// PageProcessed implements harvester.Observer
func (t *TUI) PageProcessed(e harvester.PageEvent) {
	t.Send(PageMsg{Event: e})
}

// SourceFinished implements harvester.Observer
func (t *TUI) SourceFinished(res harvester.Result) {
	t.Send(SourceFinishedMsg{Result: res})
}

// Finish marks the run complete; the dashboard closes itself shortly after.
func (t *TUI) Finish(report *harvester.Report) {
	t.Send(DoneMsg{Report: report})
}

// LogWriter returns a writer that turns each written line into a log panel
// entry, so the structured logger does not draw over the alt screen. Writes
// never block; lines are dropped while the queue is full.
func (t *TUI) LogWriter() io.Writer {
	return logWriter{t}
}

type logWriter struct{ t *TUI }

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		select {
		case w.t.logs <- LogMsg{Level: "LOG", Message: line}:
		default:
		}
	}
	return len(p), nil
}
