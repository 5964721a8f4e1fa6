package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeTransport records every call and answers with respond.
type fakeTransport struct {
	mu      sync.Mutex
	calls   [][]core.DispatchUnit
	respond func(call int, units []core.DispatchUnit) []core.DispatchResult
	onCall  func(call int)
}

func (f *fakeTransport) Send(_ context.Context, units []core.DispatchUnit) []core.DispatchResult {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, units)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(call)
	}
	if f.respond != nil {
		return f.respond(call, units)
	}
	out := make([]core.DispatchResult, len(units))
	for i := range out {
		out[i] = core.Sent(200, "")
	}
	return out
}

// sleepRecorder records requested delays without waiting.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func makeUnits(n int) []core.DispatchUnit {
	units := make([]core.DispatchUnit, n)
	for i := range units {
		units[i] = core.DispatchUnit{RecordIndex: i, Payload: map[string]string{"email": "a@b.com"}}
	}
	return units
}

func runConfig(rpm, batch int) core.RunConfiguration {
	return core.RunConfiguration{
		RequestsPerMinute: rpm,
		BatchSize:         batch,
		Now:               func() time.Time { return testNow },
	}
}

// ----------------------------------------------------------------------------
// Pacing
// ----------------------------------------------------------------------------

func TestDispatcher_SingleModeDelays(t *testing.T) {
	tr := &fakeTransport{}
	rec := &sleepRecorder{}
	state := core.NewRunState(3, nil)

	d := New(tr, core.ModeSingle, runConfig(20, 0), WithSleeper(rec.sleep))
	d.Run(context.Background(), makeUnits(3), state)

	assert.Len(t, tr.calls, 3)
	assert.Equal(t, []time.Duration{3000 * time.Millisecond, 3000 * time.Millisecond}, rec.delays)

	s := state.Agg.Snapshot()
	assert.Equal(t, 3, s.Sent)
	assert.True(t, s.Complete())
}

func TestDispatcher_BatchedModeSubtractsCallDuration(t *testing.T) {
	clock := &fakeClock{t: testNow}
	tr := &fakeTransport{onCall: func(int) { clock.Advance(400 * time.Millisecond) }}
	rec := &sleepRecorder{}
	state := core.NewRunState(5, nil)

	d := New(tr, core.ModeBatched, runConfig(60, 2), WithSleeper(rec.sleep), WithClock(clock.Now))
	d.Run(context.Background(), makeUnits(5), state)

	require.Len(t, tr.calls, 3)
	assert.Len(t, tr.calls[0], 2)
	assert.Len(t, tr.calls[1], 2)
	assert.Len(t, tr.calls[2], 1)
	assert.Equal(t, []time.Duration{600 * time.Millisecond, 600 * time.Millisecond}, rec.delays)
	assert.Equal(t, 5, state.Agg.Snapshot().Sent)

	final := state.Final()
	require.Len(t, final, 5)
	assert.Equal(t, 2, final[4].Unit.BatchIndex)
}

func TestDispatcher_BatchedSlowCallSkipsDelay(t *testing.T) {
	clock := &fakeClock{t: testNow}
	tr := &fakeTransport{onCall: func(int) { clock.Advance(2 * time.Second) }}
	rec := &sleepRecorder{}

	d := New(tr, core.ModeBatched, runConfig(60, 1), WithSleeper(rec.sleep), WithClock(clock.Now))
	d.Run(context.Background(), makeUnits(2), core.NewRunState(2, nil))

	assert.Equal(t, []time.Duration{0}, rec.delays)
}

func TestPacer(t *testing.T) {
	single := NewPacer(core.ModeSingle, 20)
	assert.Equal(t, 3*time.Second, single.After(10*time.Second))

	batched := NewPacer(core.ModeBatched, 60)
	assert.Equal(t, 700*time.Millisecond, batched.After(300*time.Millisecond))
	assert.Equal(t, time.Duration(0), batched.After(time.Second))
	assert.Equal(t, time.Duration(0), batched.After(3*time.Second))

	assert.Equal(t, time.Duration(0), NewPacer(core.ModeSingle, 0).Interval())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

// ----------------------------------------------------------------------------
// Retry pass
// ----------------------------------------------------------------------------

func TestDispatcher_RetriesFailedOnce(t *testing.T) {
	tr := &fakeTransport{
		respond: func(call int, units []core.DispatchUnit) []core.DispatchResult {
			u := units[0]
			switch {
			case call < 4 && (u.RecordIndex == 1 || u.RecordIndex == 3):
				return []core.DispatchResult{core.Failed(503, "unavailable")}
			case u.RecordIndex == 3:
				return []core.DispatchResult{core.Failed(503, "still unavailable")}
			default:
				return []core.DispatchResult{core.Sent(200, "")}
			}
		},
	}
	rec := &sleepRecorder{}
	state := core.NewRunState(4, nil)

	d := New(tr, core.ModeSingle, runConfig(60, 0), WithSleeper(rec.sleep))
	d.Run(context.Background(), makeUnits(4), state)

	require.Len(t, tr.calls, 6)
	assert.Equal(t, 1, tr.calls[4][0].RecordIndex, "retry pass keeps failure order")
	assert.Equal(t, 3, tr.calls[5][0].RecordIndex)

	// 3 delays in pass one, 1 between passes, 1 in pass two.
	assert.Len(t, rec.delays, 5)

	s := state.Agg.Snapshot()
	assert.Equal(t, 3, s.Sent)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Retried)
	assert.True(t, s.Complete())

	final := state.Final()
	assert.Equal(t, 2, final[1].Attempt)
	assert.Equal(t, core.ResultSent, final[1].Result.Kind)
	assert.Equal(t, core.ResultFailed, final[3].Result.Kind)
}

func TestDispatcher_NoRetryWhenAllSent(t *testing.T) {
	tr := &fakeTransport{}
	rec := &sleepRecorder{}

	d := New(tr, core.ModeSingle, runConfig(60, 0), WithSleeper(rec.sleep))
	d.Run(context.Background(), makeUnits(1), core.NewRunState(1, nil))

	assert.Len(t, tr.calls, 1)
	assert.Empty(t, rec.delays)
}

// ----------------------------------------------------------------------------
// Cancellation
// ----------------------------------------------------------------------------

func TestDispatcher_StopSkipsRemaining(t *testing.T) {
	state := core.NewRunState(5, nil)
	tr := &fakeTransport{onCall: func(call int) {
		if call == 1 {
			state.Stop()
		}
	}}
	rec := &sleepRecorder{}

	d := New(tr, core.ModeSingle, runConfig(60, 0), WithSleeper(rec.sleep))
	d.Run(context.Background(), makeUnits(5), state)

	assert.Len(t, tr.calls, 2, "the in-flight call completes, nothing new is issued")

	s := state.Agg.Snapshot()
	assert.Equal(t, 2, s.Sent)
	assert.Equal(t, 3, s.Skipped)
	assert.True(t, s.Complete())

	for _, o := range state.Final()[2:] {
		assert.Equal(t, core.ReasonCancelled, o.Result.Message)
	}
}

func TestDispatcher_ContextCancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	tr := &fakeTransport{}
	state := core.NewRunState(3, nil)

	d := New(tr, core.ModeSingle, runConfig(60, 0), WithSleeper(sleeper))
	d.Run(ctx, makeUnits(3), state)

	assert.Len(t, tr.calls, 1)
	s := state.Agg.Snapshot()
	assert.Equal(t, 1, s.Sent)
	assert.Equal(t, 2, s.Skipped)
}

func TestDispatcher_CallUsesDetachedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var callErr error
	tr := &fakeTransport{}
	tr.respond = func(int, []core.DispatchUnit) []core.DispatchResult {
		return []core.DispatchResult{core.Sent(200, "")}
	}
	wrapped := transportFunc(func(c context.Context, units []core.DispatchUnit) []core.DispatchResult {
		cancel()
		callErr = c.Err()
		return tr.Send(c, units)
	})

	state := core.NewRunState(2, nil)
	d := New(wrapped, core.ModeSingle, runConfig(60, 0), WithSleeper((&sleepRecorder{}).sleep))
	d.Run(ctx, makeUnits(2), state)

	assert.NoError(t, callErr, "cancelling the run must not cancel the call")
	assert.Equal(t, 1, state.Agg.Snapshot().Sent)
	assert.Equal(t, 1, state.Agg.Snapshot().Skipped)
}

func TestDispatcher_MismatchedResultsFail(t *testing.T) {
	tr := &fakeTransport{respond: func(int, []core.DispatchUnit) []core.DispatchResult { return nil }}
	state := core.NewRunState(1, nil)

	d := New(tr, core.ModeSingle, runConfig(60, 0), WithSleeper((&sleepRecorder{}).sleep))
	d.Run(context.Background(), makeUnits(1), state)

	s := state.Agg.Snapshot()
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.StatusCodes[core.NetworkErrorCode])
}

type transportFunc func(context.Context, []core.DispatchUnit) []core.DispatchResult

func (f transportFunc) Send(ctx context.Context, units []core.DispatchUnit) []core.DispatchResult {
	return f(ctx, units)
}
