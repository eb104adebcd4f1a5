package harvester

import (
	"fmt"
	"time"
)

// State is where a source ended up.
type State int

const (
	// StateActive means more pages remain.
	StateActive State = iota
	// StateExhausted means the checkpoint reached the upstream total.
	StateExhausted
	// StateHalted means a fatal error stopped the source. Its checkpoint is
	// intact and the next run resumes from it.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExhausted:
		return "exhausted"
	case StateHalted:
		return "halted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the outcome for one source.
type Result struct {
	Source      string
	State       State
	StartOffset int
	Offset      int
	Total       int
	Records     int
	Pages       int
	Duration    time.Duration
	Err         error
}

// Halted reports whether the source stopped on an error.
func (r Result) Halted() bool {
	return r.State == StateHalted
}

// Report collects the results of one run in processing order.
type Report struct {
	Results  []Result
	Duration time.Duration
}

// Halted returns the sources that stopped on an error.
func (r *Report) Halted() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Halted() {
			out = append(out, res)
		}
	}
	return out
}

// Records is the number of records appended across all sources.
func (r *Report) Records() int {
	n := 0
	for _, res := range r.Results {
		n += res.Records
	}
	return n
}

// Result returns the entry for source.
func (r *Report) Result(source string) (Result, bool) {
	for _, res := range r.Results {
		if res.Source == source {
			return res, true
		}
	}
	return Result{}, false
}
