package dispatch

import (
	"context"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/logging"
)

// DefaultTimeout bounds each network call.
const DefaultTimeout = 30 * time.Second

// Dispatcher sends units through a Transport, one call at a time, and folds
// every outcome into a RunState.
//
// A run is two passes. The first sends every unit in input order. Units that
// failed are then re-sent once, in the order they failed, after a single
// interval delay. Retry failures are terminal.
type Dispatcher struct {
	transport Transport
	mode      core.DeliveryMode
	batchSize int
	pacer     Pacer
	timeout   time.Duration

	sleep Sleeper
	now   func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSleeper replaces the pacing sleep (tests record delays with it).
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithClock replaces the time source used to measure calls.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher for cfg. BatchSize is only used in batched mode.
func New(transport Transport, mode core.DeliveryMode, cfg core.RunConfiguration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		mode:      mode,
		batchSize: cfg.BatchSize,
		pacer:     NewPacer(mode, cfg.RequestsPerMinute),
		timeout:   cfg.Timeout,
		sleep:     SleepContext,
		now:       cfg.Clock(),
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if mode == core.ModeSingle || d.batchSize <= 0 {
		d.batchSize = 1
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dispatches units and folds every outcome into state. It returns when
// both passes are done or the run was stopped. A stop leaves the remaining
// first-pass units folded as Skipped so the totals still add up.
func (d *Dispatcher) Run(ctx context.Context, units []core.DispatchUnit, state *core.RunState) {
	logger := logging.WithFields(ctx, "mode", d.mode.String(), "units", len(units))

	if d.pass(ctx, units, 1, state) {
		logger.Warn("run stopped during first pass")
		return
	}

	retry := state.TakeFailed()
	if len(retry) == 0 {
		return
	}

	logger.Info("retrying failed units", "count", len(retry))
	if d.cancelled(ctx, state) || d.sleep(ctx, d.pacer.Interval()) != nil {
		logger.Warn("run stopped before retry pass")
		return
	}
	if d.pass(ctx, retry, 2, state) {
		logger.Warn("run stopped during retry pass")
	}
}

// pass sends units in groups of batchSize. It reports true if it stopped early.
func (d *Dispatcher) pass(ctx context.Context, units []core.DispatchUnit, attempt int, state *core.RunState) bool {
	logger := logging.FromContext(ctx)

	for start := 0; start < len(units); start += d.batchSize {
		if d.cancelled(ctx, state) {
			d.skipRemaining(units[start:], attempt, state)
			return true
		}

		end := min(start+d.batchSize, len(units))
		batch := units[start:end]

		began := d.now()
		results := d.call(ctx, batch)
		elapsed := d.now().Sub(began)

		sent := 0
		for i, u := range batch {
			u.BatchIndex = start / d.batchSize
			state.Fold(core.DispatchOutcome{
				Unit:    u,
				Result:  results[i],
				Attempt: attempt,
				At:      d.now(),
			})
			if results[i].Kind == core.ResultSent {
				sent++
			}
		}
		logger.Debug("call complete",
			"attempt", attempt,
			"units", len(batch),
			"sent", sent,
			"elapsed", elapsed,
		)

		if end == len(units) {
			break
		}
		if d.cancelled(ctx, state) {
			d.skipRemaining(units[end:], attempt, state)
			return true
		}
		if err := d.sleep(ctx, d.pacer.After(elapsed)); err != nil {
			d.skipRemaining(units[end:], attempt, state)
			return true
		}
	}
	return false
}

// call runs one transport call on a context detached from cancellation so
// a stop never aborts a request already on the wire.
func (d *Dispatcher) call(ctx context.Context, batch []core.DispatchUnit) []core.DispatchResult {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	results := d.transport.Send(callCtx, batch)
	if len(results) != len(batch) {
		return failAll(len(batch), core.NetworkErrorCode, "transport returned a mismatched result count")
	}
	return results
}

func (d *Dispatcher) cancelled(ctx context.Context, state *core.RunState) bool {
	return ctx.Err() != nil || state.Stopped()
}

// skipRemaining folds never-issued first-pass units as Skipped. Retry-pass
// units already carry a Failed outcome and are left as they are.
func (d *Dispatcher) skipRemaining(units []core.DispatchUnit, attempt int, state *core.RunState) {
	if attempt > 1 {
		return
	}
	for _, u := range units {
		state.Fold(core.DispatchOutcome{
			Unit:   u,
			Result: core.Skipped(core.ReasonCancelled),
			At:     d.now(),
		})
	}
}
