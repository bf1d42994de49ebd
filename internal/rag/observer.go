package rag

import "time"

// Observer receives build and query outcomes, typically for metrics.
type Observer interface {
	ObserveQuery(outcome string, elapsed time.Duration)
	ObserveBuild(status string, elapsed time.Duration, entries, ocrPages int)
	SetIndexEntries(n int)
}

// Query outcomes reported to an Observer.
const (
	OutcomeSuccess       = "success"
	OutcomeNotBuilt      = "not_built"
	OutcomeUpstreamError = "upstream_error"
	OutcomeError         = "error"
)

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, time.Duration)           {}
func (nopObserver) ObserveBuild(string, time.Duration, int, int) {}
func (nopObserver) SetIndexEntries(int)                          {}
