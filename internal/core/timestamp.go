package core

import (
	"strings"
	"time"
)

// ResolvedTimestamp is the event time that goes on the wire.
type ResolvedTimestamp struct {
	Millis  int64
	Reset   bool   // true when an out-of-window value was replaced by now
	Warning string // set when the value was replaced unexpectedly
}

// ResolveTimestamp applies the conversionTime policy:
//   - disabled, empty or non-numeric: now
//   - inside the recency window: the record value
//   - outside the window with ResetOldTimestamps: now
//   - otherwise now plus a warning; Validate rejects these records first
func ResolveTimestamp(rec RawRecord, cfg RunConfiguration, now time.Time) ResolvedTimestamp {
	nowMs := now.UnixMilli()

	raw := strings.TrimSpace(rec.Get(FieldConversionTime))
	if !cfg.UseConversionTime || raw == "" {
		return ResolvedTimestamp{Millis: nowMs}
	}

	ts, ok := ParseEpochMillis(raw)
	if !ok {
		return ResolvedTimestamp{Millis: nowMs}
	}

	if InRecencyWindow(ts, now) {
		return ResolvedTimestamp{Millis: ts}
	}
	if cfg.ResetOldTimestamps {
		return ResolvedTimestamp{Millis: nowMs, Reset: true}
	}
	return ResolvedTimestamp{
		Millis:  nowMs,
		Warning: "conversionTime outside the recency window reached the payload builder, using current time",
	}
}
