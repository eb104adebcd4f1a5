package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"jiraharvest/pkg/harvester"
)

// ProgressDisplay prints a one-line progress bar per source. In verbose
// mode every page gets its own line instead.
type ProgressDisplay struct {
	mu        sync.Mutex
	w         io.Writer
	verbose   bool
	source    string
	start     int
	offset    int
	total     int
	records   int
	startTime time.Time
}

var _ harvester.Observer = (*ProgressDisplay)(nil)

// NewProgressDisplay creates a display writing to w
func NewProgressDisplay(w io.Writer, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{w: w, verbose: verbose}
}

// SourceStarted resets the line for a new source
func (p *ProgressDisplay) SourceStarted(source string, offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.source = source
	p.start = offset
	p.offset = offset
	p.total = 0
	p.records = 0
	p.startTime = time.Now()

	if offset > 0 {
		fmt.Fprintf(p.w, "%s resuming at offset %d\n", Cyan(source), offset)
	} else {
		fmt.Fprintf(p.w, "%s starting\n", Cyan(source))
	}
}

// PageProcessed redraws the progress line
func (p *ProgressDisplay) PageProcessed(e harvester.PageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.offset = e.Offset
	p.total = e.Total
	p.records += e.Records

	if p.verbose {
		fmt.Fprintf(p.w, "%s page %d • %d issues • %d/%d\n", Magenta("→"), e.Page, e.Records, e.Offset, e.Total)
		return
	}
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), p.line())
}

// SourceFinished closes the line with the outcome
func (p *ProgressDisplay) SourceFinished(res harvester.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose && res.Pages > 0 {
		fmt.Fprintln(p.w)
	}

	switch res.State {
	case harvester.StateExhausted:
		fmt.Fprintf(p.w, "%s %s • %d new issues • %d/%d • %s\n",
			Green("✓"), res.Source, res.Records, res.Offset, res.Total, FormatDuration(res.Duration))
	case harvester.StateHalted:
		fmt.Fprintf(p.w, "%s %s halted at offset %d: %v\n", Red("✗"), res.Source, res.Offset, res.Err)
		fmt.Fprintf(p.w, "  %s\n", Dim("rerun to resume from the checkpoint"))
	default:
		fmt.Fprintf(p.w, "%s %s stopped at offset %d\n", Yellow("•"), res.Source, res.Offset)
	}
}

// line renders the bar; caller holds the lock
func (p *ProgressDisplay) line() string {
	progress := 0.0
	if p.total > 0 {
		progress = float64(p.offset) / float64(p.total)
	}
	if progress > 1 {
		progress = 1
	}
	barWidth := 20
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.records) / elapsed.Minutes()
	}

	return fmt.Sprintf("%s [%s] %d/%d • %.0f/min • %s",
		Cyan(p.source), bar, p.offset, p.total, rate, p.eta(rate))
}

func (p *ProgressDisplay) eta(perMinute float64) string {
	remaining := p.total - p.offset
	if remaining <= 0 {
		return "done"
	}
	if perMinute <= 0 {
		return "calculating..."
	}
	return FormatDuration(time.Duration(float64(remaining) / perMinute * float64(time.Minute)))
}

// Summary prints the end-of-run table.
func (p *ProgressDisplay) Summary(report *harvester.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\n%s %d new issues in %s\n", Green("✓"), report.Records(), FormatDuration(report.Duration))
	for _, res := range report.Results {
		fmt.Fprintf(p.w, "  %s %-12s %-10s %d/%d\n", Dim("•"), res.Source, res.State, res.Offset, res.Total)
	}
	if halted := report.Halted(); len(halted) > 0 {
		fmt.Fprintf(p.w, "  %s\n", Yellow(fmt.Sprintf("%d source(s) halted; rerun to resume", len(halted))))
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
