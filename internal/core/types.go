// Package core provides the validation, payload and accounting logic for
// conversion replays. This package has no transport or UI dependencies.
package core

import (
	"fmt"
	"time"
)

// Channel identifies an outbound delivery channel.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelCAPI    Channel = "capi"
)

// DeliveryMode indicates how units are grouped into network calls.
type DeliveryMode int

const (
	// ModeSingle sends one unit per call with a fixed delay between calls.
	ModeSingle DeliveryMode = iota
	// ModeBatched groups up to BatchSize units per call and subtracts the
	// call duration from the delay.
	ModeBatched
)

func (m DeliveryMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// RawRecord is one parsed CSV row. Columns keep the header order.
// A RawRecord is never modified after the parser returns it.
type RawRecord struct {
	columns []string
	values  map[string]string

	Index int // 0-based position among parsed records
	Line  int // 1-based line number in the source file
}

// NewRawRecord builds a record from parallel column and value slices.
// Extra values beyond len(columns) are ignored.
func NewRawRecord(columns, values []string) RawRecord {
	r := RawRecord{
		columns: columns,
		values:  make(map[string]string, len(columns)),
	}
	for i, col := range columns {
		if i < len(values) {
			r.values[col] = values[i]
		}
	}
	return r
}

// Get returns the value for a column, or "" if the column is absent.
func (r RawRecord) Get(column string) string {
	return r.values[column]
}

// Has reports whether the record carries the column at all.
func (r RawRecord) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Columns returns the column names in CSV order.
func (r RawRecord) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Values returns the values in column order.
func (r RawRecord) Values() []string {
	out := make([]string, len(r.columns))
	for i, col := range r.columns {
		out[i] = r.values[col]
	}
	return out
}

// Len returns the number of columns.
func (r RawRecord) Len() int {
	return len(r.columns)
}

// RunConfiguration is set once before dispatch begins and never mutated.
type RunConfiguration struct {
	Channel           Channel
	EndpointURL       string
	RequestsPerMinute int // calls per minute; for batched channels one call carries many events
	BatchSize         int // only used by batched channels
	Timeout           time.Duration

	UseConversionTime  bool
	ResetOldTimestamps bool

	// CAPI-only settings.
	ConversionID string
	AccessToken  string
	APIVersion   string

	// Now returns the current time. Defaults to time.Now when nil.
	Now func() time.Time
}

// Clock returns the configured time source.
func (c RunConfiguration) Clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

// ConversionURN returns the conversion identifier used on the CAPI wire format.
func (c RunConfiguration) ConversionURN() string {
	return fmt.Sprintf("urn:lla:llaPartnerConversion:%s", c.ConversionID)
}

// Interval returns the target spacing between calls for the rate limit.
func (c RunConfiguration) Interval() time.Duration {
	if c.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Duration(60000/c.RequestsPerMinute) * time.Millisecond
}

// DispatchUnit is one outbound payload plus where it came from.
type DispatchUnit struct {
	Record      RawRecord
	Payload     any
	RecordIndex int
	BatchIndex  int
}

// ResultKind classifies a dispatch outcome.
type ResultKind string

const (
	ResultSent    ResultKind = "sent"
	ResultFailed  ResultKind = "failed"
	ResultSkipped ResultKind = "skipped"
)

// NetworkErrorCode is the status code recorded when no HTTP response arrived.
const NetworkErrorCode = 0

// DispatchResult is what the remote side said about one unit.
type DispatchResult struct {
	Kind       ResultKind
	StatusCode int
	ResponseID string // Sent only, may be empty
	Message    string // Failed or Skipped reason
}

// Sent builds a successful result.
func Sent(status int, responseID string) DispatchResult {
	return DispatchResult{Kind: ResultSent, StatusCode: status, ResponseID: responseID}
}

// Failed builds a failed result.
func Failed(status int, message string) DispatchResult {
	return DispatchResult{Kind: ResultFailed, StatusCode: status, Message: message}
}

// Skipped builds a result for a unit that was never sent.
func Skipped(reason string) DispatchResult {
	return DispatchResult{Kind: ResultSkipped, Message: reason}
}

// DispatchOutcome is created when a dispatch attempt resolves.
type DispatchOutcome struct {
	Unit    DispatchUnit
	Result  DispatchResult
	Attempt int // 1 for the first pass, 2 for the retry pass, 0 if never attempted
	At      time.Time
}

// ProgressCallback is called after each outcome has been folded into the run state.
type ProgressCallback func(DispatchOutcome, Snapshot)
