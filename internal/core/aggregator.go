package core

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ReasonCancelled is the skip reason for units never issued before a stop.
const ReasonCancelled = "run cancelled"

// Aggregator folds dispatch outcomes into running counts.
// It is safe for concurrent use, although a run only folds from one goroutine.
type Aggregator struct {
	mu sync.Mutex

	total   int
	sent    int
	failed  int
	skipped int
	retried int

	statusCodes map[int]int
	categories  map[string]int
}

// NewAggregator creates an aggregator for a run of total records.
func NewAggregator(total int) *Aggregator {
	return &Aggregator{
		total:       total,
		statusCodes: make(map[int]int),
		categories:  make(map[string]int),
	}
}

// Record folds one first-attempt outcome.
func (a *Aggregator) Record(o DispatchOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record(o)
}

// RecordRetry folds the outcome of a retry. The unit was previously counted
// as failed, so that count is released before the new result is added.
func (a *Aggregator) RecordRetry(o DispatchOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failed > 0 {
		a.failed--
	}
	a.retried++
	a.record(o)
}

func (a *Aggregator) record(o DispatchOutcome) {
	switch o.Result.Kind {
	case ResultSent:
		a.sent++
		a.statusCodes[o.Result.StatusCode]++
	case ResultFailed:
		a.failed++
		a.statusCodes[o.Result.StatusCode]++
		a.categories[MapFailure(o.Result.StatusCode, o.Result.Message).Code]++
	case ResultSkipped:
		a.skipped++
	}
}

// Snapshot is a point-in-time copy of the aggregator.
type Snapshot struct {
	Total   int
	Sent    int
	Failed  int
	Skipped int
	Retried int

	StatusCodes map[int]int    // every attempt, 0 for network errors
	Categories  map[string]int // failure code -> count
}

// Snapshot returns a copy of the current counts.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Total:       a.total,
		Sent:        a.sent,
		Failed:      a.failed,
		Skipped:     a.skipped,
		Retried:     a.retried,
		StatusCodes: make(map[int]int, len(a.statusCodes)),
		Categories:  make(map[string]int, len(a.categories)),
	}
	for k, v := range a.statusCodes {
		s.StatusCodes[k] = v
	}
	for k, v := range a.categories {
		s.Categories[k] = v
	}
	return s
}

// Processed returns sent + failed + skipped.
func (s Snapshot) Processed() int {
	return s.Sent + s.Failed + s.Skipped
}

// SuccessRate is sent / (sent + failed), 0 when nothing was attempted.
func (s Snapshot) SuccessRate() float64 {
	return ratio(s.Sent, s.Sent+s.Failed)
}

// Progress is processed / total, 0 when total is 0.
func (s Snapshot) Progress() float64 {
	return ratio(s.Processed(), s.Total)
}

// Complete reports whether every record has an outcome.
func (s Snapshot) Complete() bool {
	return s.Processed() == s.Total
}

// CategoryCount is one row of the failure breakdown.
type CategoryCount struct {
	Code  string
	Count int
}

// TopCategories returns failure categories by descending count, at most n.
// Ties sort by code. n <= 0 returns all.
func (s Snapshot) TopCategories(n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(s.Categories))
	for code, c := range s.Categories {
		out = append(out, CategoryCount{Code: code, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SortedStatusCodes returns the histogram keys in ascending order.
func (s Snapshot) SortedStatusCodes() []int {
	codes := make([]int, 0, len(s.StatusCodes))
	for c := range s.StatusCodes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// FormatPercent renders a ratio as "83.3%".
func FormatPercent(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// RunState is the mutable state of one run: counts, the failed units awaiting
// the retry pass, every outcome in fold order, and the stop flag.
type RunState struct {
	Agg *Aggregator

	mu       sync.Mutex
	failed   []DispatchUnit
	outcomes []DispatchOutcome
	stopped  atomic.Bool
	onFold   ProgressCallback
}

// NewRunState creates the state for a run over total records.
func NewRunState(total int, onFold ProgressCallback) *RunState {
	return &RunState{
		Agg:    NewAggregator(total),
		onFold: onFold,
	}
}

// Fold records an outcome. Retry outcomes (Attempt > 1) reclassify the
// previously failed unit. Failed first attempts are queued for retry.
func (s *RunState) Fold(o DispatchOutcome) {
	if o.Attempt > 1 {
		s.Agg.RecordRetry(o)
	} else {
		s.Agg.Record(o)
	}

	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	if o.Result.Kind == ResultFailed && o.Attempt == 1 {
		s.failed = append(s.failed, o.Unit)
	}
	s.mu.Unlock()

	if s.onFold != nil {
		s.onFold(o, s.Agg.Snapshot())
	}
}

// TakeFailed returns the units that failed on the first pass, in failure
// order, and clears the queue.
func (s *RunState) TakeFailed() []DispatchUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.failed
	s.failed = nil
	return out
}

// Outcomes returns every folded outcome in order.
func (s *RunState) Outcomes() []DispatchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DispatchOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Final returns the last outcome per record index, in record order.
// A retried unit appears with its retry result.
func (s *RunState) Final() []DispatchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[int]int, len(s.outcomes))
	var order []int
	for i, o := range s.outcomes {
		if _, seen := latest[o.Unit.RecordIndex]; !seen {
			order = append(order, o.Unit.RecordIndex)
		}
		latest[o.Unit.RecordIndex] = i
	}
	sort.Ints(order)

	out := make([]DispatchOutcome, 0, len(order))
	for _, idx := range order {
		out = append(out, s.outcomes[latest[idx]])
	}
	return out
}

// Stop requests a cooperative stop.
func (s *RunState) Stop() { s.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (s *RunState) Stopped() bool { return s.stopped.Load() }
