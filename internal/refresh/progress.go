package refresh

// Phase names the stage of a refresh cycle a progress report belongs to.
type Phase string

const (
	PhaseFetch Phase = "fetch"
	PhaseMerge Phase = "merge"
)

// ProgressSink receives a report each time a list finishes a phase. It is
// called from worker goroutines and must be safe for concurrent use.
type ProgressSink interface {
	Report(phase Phase, listURL string, completed, total int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(phase Phase, listURL string, completed, total int)

func (f ProgressFunc) Report(phase Phase, listURL string, completed, total int) {
	f(phase, listURL, completed, total)
}

// NopProgress discards every report.
type NopProgress struct{}

func (NopProgress) Report(Phase, string, int, int) {}
