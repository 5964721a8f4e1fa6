// Package replay wires parsing, validation, payload building and dispatch
// into one run per CSV file.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/dispatch"
	"github.com/JonMunkholm/conversion-replay/internal/logging"
)

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Channel core.Channel
	Source  string // file path, empty for in-memory runs

	Header   []string
	Warnings []string // parser warnings
	Dropped  int      // lines the parser dropped

	// Outcomes holds the final outcome per record, in record order.
	Outcomes []core.DispatchOutcome
	Snapshot core.Snapshot

	StartedAt  time.Time
	FinishedAt time.Time
	Stopped    bool
}

// Runner replays records to one channel.
type Runner struct {
	def       ChannelDefinition
	cfg       core.RunConfiguration
	transport dispatch.Transport

	dispatchOpts []dispatch.Option
	onProgress   core.ProgressCallback

	mu    sync.Mutex
	state *core.RunState
	stop  bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithTransport replaces the channel's default transport.
func WithTransport(t dispatch.Transport) Option {
	return func(r *Runner) { r.transport = t }
}

// WithDispatchOptions passes options through to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(r *Runner) { r.dispatchOpts = append(r.dispatchOpts, opts...) }
}

// WithProgress registers a callback invoked after every folded outcome.
func WithProgress(cb core.ProgressCallback) Option {
	return func(r *Runner) { r.onProgress = cb }
}

// NewRunner creates a runner for cfg.Channel.
func NewRunner(cfg core.RunConfiguration, opts ...Option) (*Runner, error) {
	def, ok := Get(cfg.Channel)
	if !ok {
		return nil, fmt.Errorf("unknown channel: %q", cfg.Channel)
	}

	r := &Runner{def: def, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.transport == nil {
		r.transport = def.NewTransport(cfg)
	}
	return r, nil
}

// Definition returns the channel the runner sends to.
func (r *Runner) Definition() ChannelDefinition {
	return r.def
}

// Stop asks the current run to stop before the next call. Outcomes already
// on the wire are still recorded. A stop before Run starts applies to it.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop = true
	if r.state != nil {
		r.state.Stop()
	}
}

// RunFile parses path and replays its records.
// A *core.ParseError is returned when the file yields no records.
func (r *Runner) RunFile(ctx context.Context, path string, opts core.ParseOptions) (*Result, error) {
	parsed, err := core.ReadFile(path, opts)
	if err != nil {
		return nil, err
	}

	res := r.Run(ctx, parsed.Records)
	res.Source = path
	res.Header = parsed.Header
	res.Warnings = parsed.Warnings
	res.Dropped = parsed.Dropped
	return res, nil
}

// Run validates, builds and dispatches records and returns the result.
// Sent + Failed + Skipped always equals len(records), even when stopped.
func (r *Runner) Run(ctx context.Context, records []core.RawRecord) *Result {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithFields(ctx, "channel", r.def.Channel, "records", len(records))

	state := core.NewRunState(len(records), r.onProgress)
	r.mu.Lock()
	r.state = state
	if r.stop {
		state.Stop()
	}
	r.mu.Unlock()

	clock := r.cfg.Clock()
	res := &Result{
		RunID:     runID,
		Channel:   r.def.Channel,
		StartedAt: clock(),
	}
	if len(records) > 0 {
		res.Header = records[0].Columns()
	}

	logger.Info("run started", "mode", r.def.Mode.String())

	units := r.prepare(ctx, records, state)

	d := dispatch.New(r.transport, r.def.Mode, r.cfg, r.dispatchOpts...)
	d.Run(ctx, units, state)

	res.FinishedAt = clock()
	res.Outcomes = state.Final()
	res.Snapshot = state.Agg.Snapshot()
	res.Stopped = state.Stopped() || ctx.Err() != nil

	logger.Info("run finished",
		"sent", res.Snapshot.Sent,
		"failed", res.Snapshot.Failed,
		"skipped", res.Snapshot.Skipped,
		"success_rate", core.FormatPercent(res.Snapshot.SuccessRate()),
		"stopped", res.Stopped,
	)
	return res
}

// prepare validates every record, folds rejects as Skipped and returns the
// dispatch units for the accepted ones in input order.
func (r *Runner) prepare(ctx context.Context, records []core.RawRecord, state *core.RunState) []core.DispatchUnit {
	logger := logging.FromContext(ctx)
	clock := r.cfg.Clock()
	units := make([]core.DispatchUnit, 0, len(records))

	for i, rec := range records {
		email := logging.RedactEmail(rec.Get(core.FieldEmail))
		vr := core.Validate(rec, r.cfg)

		for _, w := range vr.Warnings {
			logger.Warn("record warning", "record", i, "line", rec.Line, "email", email, "warning", w.Error())
		}

		if !vr.Accepted {
			logger.Info("record skipped", "record", i, "line", rec.Line, "email", email, "reason", vr.RejectReason())
			state.Fold(skip(rec, i, vr.RejectReason(), clock()))
			continue
		}

		built, err := r.def.Build(rec, vr, r.cfg, clock())
		if err != nil {
			logger.Warn("payload build failed", "record", i, "line", rec.Line, "error", err)
			state.Fold(skip(rec, i, err.Error(), clock()))
			continue
		}
		if built.Timestamp.Reset {
			logger.Debug("conversionTime reset to now", "record", i, "line", rec.Line)
		}
		if built.Timestamp.Warning != "" {
			logger.Warn("record warning", "record", i, "line", rec.Line, "warning", built.Timestamp.Warning)
		}

		units = append(units, core.DispatchUnit{
			Record:      rec,
			Payload:     built.Payload,
			RecordIndex: i,
		})
	}

	return units
}

func skip(rec core.RawRecord, idx int, reason string, at time.Time) core.DispatchOutcome {
	return core.DispatchOutcome{
		Unit:   core.DispatchUnit{Record: rec, RecordIndex: idx},
		Result: core.Skipped(reason),
		At:     at,
	}
}
