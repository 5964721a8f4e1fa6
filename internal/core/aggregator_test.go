package core

import (
	"testing"
)

func outcome(idx int, res DispatchResult, attempt int) DispatchOutcome {
	return DispatchOutcome{
		Unit:    DispatchUnit{RecordIndex: idx},
		Result:  res,
		Attempt: attempt,
		At:      testNow,
	}
}

// ----------------------------------------------------------------------------
// Aggregator Tests
// ----------------------------------------------------------------------------

func TestAggregator_Counts(t *testing.T) {
	agg := NewAggregator(5)
	agg.Record(outcome(0, Sent(200, ""), 1))
	agg.Record(outcome(1, Sent(201, "id-1"), 1))
	agg.Record(outcome(2, Failed(400, "bad"), 1))
	agg.Record(outcome(3, Failed(NetworkErrorCode, "dial tcp: connection refused"), 1))
	agg.Record(outcome(4, Skipped(ReasonMissingEmail), 0))

	s := agg.Snapshot()
	if s.Sent != 2 || s.Failed != 2 || s.Skipped != 1 {
		t.Errorf("Sent/Failed/Skipped = %d/%d/%d, want 2/2/1", s.Sent, s.Failed, s.Skipped)
	}
	if !s.Complete() {
		t.Error("Complete() = false, want true")
	}
	if s.StatusCodes[0] != 1 || s.StatusCodes[400] != 1 || s.StatusCodes[200] != 1 {
		t.Errorf("StatusCodes = %v", s.StatusCodes)
	}
	if s.Categories["NET001"] != 1 || s.Categories["HTTP400"] != 1 {
		t.Errorf("Categories = %v", s.Categories)
	}
	if got := FormatPercent(s.SuccessRate()); got != "50.0%" {
		t.Errorf("SuccessRate = %s, want 50.0%%", got)
	}
	if got := FormatPercent(s.Progress()); got != "100.0%" {
		t.Errorf("Progress = %s, want 100.0%%", got)
	}
}

func TestAggregator_RetryReclassifies(t *testing.T) {
	agg := NewAggregator(2)
	agg.Record(outcome(0, Failed(500, "boom"), 1))
	agg.Record(outcome(1, Failed(500, "boom"), 1))

	agg.RecordRetry(outcome(0, Sent(200, ""), 2))
	agg.RecordRetry(outcome(1, Failed(500, "boom"), 2))

	s := agg.Snapshot()
	if s.Sent != 1 || s.Failed != 1 || s.Retried != 2 {
		t.Errorf("Sent/Failed/Retried = %d/%d/%d, want 1/1/2", s.Sent, s.Failed, s.Retried)
	}
	if s.Processed() != s.Total {
		t.Errorf("Processed() = %d, want %d", s.Processed(), s.Total)
	}
	if s.StatusCodes[500] != 3 {
		t.Errorf("StatusCodes[500] = %d, want 3 (every attempt counted)", s.StatusCodes[500])
	}
}

func TestSnapshot_ZeroDenominators(t *testing.T) {
	s := NewAggregator(0).Snapshot()
	if s.SuccessRate() != 0 || s.Progress() != 0 {
		t.Errorf("SuccessRate/Progress = %v/%v, want 0/0", s.SuccessRate(), s.Progress())
	}
	if got := FormatPercent(s.SuccessRate()); got != "0.0%" {
		t.Errorf("FormatPercent = %q, want 0.0%%", got)
	}

	onlySkipped := NewAggregator(1)
	onlySkipped.Record(outcome(0, Skipped("x"), 0))
	if r := onlySkipped.Snapshot().SuccessRate(); r != 0 {
		t.Errorf("SuccessRate with no attempts = %v, want 0", r)
	}
}

func TestSnapshot_TopCategories(t *testing.T) {
	s := Snapshot{Categories: map[string]int{"HTTP400": 3, "NET001": 5, "HTTP429": 3, "ERR000": 1}}

	got := s.TopCategories(3)
	want := []CategoryCount{{"NET001", 5}, {"HTTP400", 3}, {"HTTP429", 3}}
	if len(got) != len(want) {
		t.Fatalf("TopCategories(3) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopCategories(3)[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if all := s.TopCategories(0); len(all) != 4 {
		t.Errorf("TopCategories(0) len = %d, want 4", len(all))
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	agg := NewAggregator(1)
	agg.Record(outcome(0, Sent(200, ""), 1))
	s := agg.Snapshot()
	s.StatusCodes[200] = 99

	if agg.Snapshot().StatusCodes[200] != 1 {
		t.Error("mutating a snapshot changed the aggregator")
	}
}

// ----------------------------------------------------------------------------
// RunState Tests
// ----------------------------------------------------------------------------

func TestRunState_FoldQueuesFailures(t *testing.T) {
	var calls int
	var last Snapshot
	st := NewRunState(3, func(_ DispatchOutcome, s Snapshot) {
		calls++
		last = s
	})

	st.Fold(outcome(0, Failed(500, "a"), 1))
	st.Fold(outcome(1, Sent(200, ""), 1))
	st.Fold(outcome(2, Failed(502, "b"), 1))

	if calls != 3 {
		t.Errorf("callback calls = %d, want 3", calls)
	}
	if last.Processed() != 3 {
		t.Errorf("last snapshot Processed() = %d, want 3", last.Processed())
	}

	failed := st.TakeFailed()
	if len(failed) != 2 || failed[0].RecordIndex != 0 || failed[1].RecordIndex != 2 {
		t.Fatalf("TakeFailed() = %+v, want records 0 and 2 in order", failed)
	}
	if again := st.TakeFailed(); len(again) != 0 {
		t.Errorf("second TakeFailed() = %d units, want 0", len(again))
	}

	st.Fold(outcome(0, Sent(200, ""), 2))
	st.Fold(outcome(2, Failed(502, "b"), 2))

	if again := st.TakeFailed(); len(again) != 0 {
		t.Errorf("retry failures were queued again: %d", len(again))
	}

	s := st.Agg.Snapshot()
	if s.Sent != 2 || s.Failed != 1 {
		t.Errorf("Sent/Failed = %d/%d, want 2/1", s.Sent, s.Failed)
	}

	final := st.Final()
	if len(final) != 3 {
		t.Fatalf("len(Final()) = %d, want 3", len(final))
	}
	if final[0].Attempt != 2 || final[0].Result.Kind != ResultSent {
		t.Errorf("Final()[0] = %+v, want the retry result", final[0])
	}
	if len(st.Outcomes()) != 5 {
		t.Errorf("len(Outcomes()) = %d, want 5", len(st.Outcomes()))
	}
}

func TestRunState_Stop(t *testing.T) {
	st := NewRunState(0, nil)
	if st.Stopped() {
		t.Fatal("Stopped() = true before Stop")
	}
	st.Stop()
	if !st.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}
