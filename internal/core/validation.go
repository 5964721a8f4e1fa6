package core

// validation.go decides whether a record may be sent and which optional
// field groups must be suppressed.
//
// Rules run in a fixed order and never short-circuit on warnings:
//  1. Email presence (hard reject)
//  2. User-info completeness (warning, suppresses the group)
//  3. Timestamp recency (hard reject, only when old timestamps are not reset)
//  4. Currency pairing (warning, suppresses the pair)
//
// Validate is a pure function of the record, the configuration and the clock.

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/text/currency"
)

// RecencyWindow is how far back a conversionTime may lie.
const RecencyWindow = 90 * 24 * time.Hour

// ReasonMissingEmail is the rejection reason for records without an email.
const ReasonMissingEmail = "missing required email field"

// ValidationError represents a single validation problem for a field.
type ValidationError struct {
	Field   string // Column name
	Value   string // The offending value, if any
	Message string // Human-readable message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult is produced per record and consumed by the payload builder.
type ValidationResult struct {
	Accepted        bool
	Reasons         []ValidationError // hard rejects; empty when Accepted
	IncludeUserInfo bool
	Warnings        []ValidationError
}

// RejectReason joins the rejection reasons into one line for logs and dumps.
func (r ValidationResult) RejectReason() string {
	parts := make([]string, len(r.Reasons))
	for i, e := range r.Reasons {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// CurrencyDecision says whether the currency pair goes on the wire.
type CurrencyDecision struct {
	Include      bool
	CurrencyCode string
	Amount       pgtype.Numeric
	Warning      string
}

// AmountString returns the amount as written, e.g. "10".
func (d CurrencyDecision) AmountString() string {
	return NumericString(d.Amount)
}

// Validate applies every rule to one record.
func Validate(rec RawRecord, cfg RunConfiguration) ValidationResult {
	res := ValidationResult{IncludeUserInfo: true}

	if strings.TrimSpace(rec.Get(FieldEmail)) == "" {
		res.Reasons = append(res.Reasons, ValidationError{
			Field:   FieldEmail,
			Message: ReasonMissingEmail,
		})
	}

	if ok, warn := checkUserInfo(rec); !ok {
		res.IncludeUserInfo = false
		res.Warnings = append(res.Warnings, warn)
	}

	if reject, ok := checkRecency(rec, cfg); !ok {
		res.Reasons = append(res.Reasons, reject)
	}

	if dec := EvaluateCurrency(rec); dec.Warning != "" {
		res.Warnings = append(res.Warnings, ValidationError{
			Field:   FieldCurrencyCode,
			Message: dec.Warning,
		})
	}

	res.Accepted = len(res.Reasons) == 0
	return res
}

// checkUserInfo returns false when some user-info fields are present but the
// name pair is incomplete.
func checkUserInfo(rec RawRecord) (bool, ValidationError) {
	first := strings.TrimSpace(rec.Get(FieldFirstName))
	last := strings.TrimSpace(rec.Get(FieldLastName))

	present := false
	for _, f := range UserInfoFields {
		if strings.TrimSpace(rec.Get(f)) != "" {
			present = true
			break
		}
	}
	if !present || (first != "" && last != "") {
		return true, ValidationError{}
	}

	var missing []string
	if first == "" {
		missing = append(missing, FieldFirstName)
	}
	if last == "" {
		missing = append(missing, FieldLastName)
	}
	return false, ValidationError{
		Field:   FieldFirstName,
		Message: fmt.Sprintf("user info incomplete (missing %s), omitting user info", strings.Join(missing, ", ")),
	}
}

// checkRecency enforces the 90-day window unless old timestamps are reset.
func checkRecency(rec RawRecord, cfg RunConfiguration) (ValidationError, bool) {
	raw := strings.TrimSpace(rec.Get(FieldConversionTime))
	if !cfg.UseConversionTime || cfg.ResetOldTimestamps || raw == "" {
		return ValidationError{}, true
	}

	ts, ok := ParseEpochMillis(raw)
	if !ok {
		return ValidationError{
			Field:   FieldConversionTime,
			Value:   raw,
			Message: "invalid conversionTime, expected epoch milliseconds",
		}, false
	}

	now := cfg.Clock()()
	if InRecencyWindow(ts, now) {
		return ValidationError{}, true
	}

	age := now.Sub(time.UnixMilli(ts))
	msg := fmt.Sprintf("conversionTime is %d days old, outside the %d-day window",
		int64(age/(24*time.Hour)), int64(RecencyWindow/(24*time.Hour)))
	if age < 0 {
		msg = fmt.Sprintf("conversionTime is %d days in the future", int64(-age/(24*time.Hour)))
	}
	return ValidationError{Field: FieldConversionTime, Value: raw, Message: msg}, false
}

// InRecencyWindow reports whether ts lies in [now-90d, now], inclusive.
func InRecencyWindow(ts int64, now time.Time) bool {
	nowMs := now.UnixMilli()
	return ts >= nowMs-RecencyWindow.Milliseconds() && ts <= nowMs
}

// EvaluateCurrency pairs currencyCode with conversionValue.
// It never rejects the record; an incomplete or malformed pair is excluded.
func EvaluateCurrency(rec RawRecord) CurrencyDecision {
	code := strings.ToUpper(strings.TrimSpace(rec.Get(FieldCurrencyCode)))
	value := strings.TrimSpace(rec.Get(FieldConversionValue))

	switch {
	case code == "" && value == "":
		return CurrencyDecision{}
	case code == "":
		return CurrencyDecision{Warning: "conversionValue present without currencyCode, omitting currency"}
	case value == "":
		return CurrencyDecision{Warning: "currencyCode present without conversionValue, omitting currency"}
	}

	if len(code) != 3 {
		return CurrencyDecision{Warning: fmt.Sprintf("invalid currencyCode %q, expected a 3-letter ISO code", code)}
	}
	if _, err := currency.ParseISO(code); err != nil {
		return CurrencyDecision{Warning: fmt.Sprintf("unknown currencyCode %q", code)}
	}

	amount := ToPgNumeric(value)
	if !amount.Valid {
		return CurrencyDecision{Warning: fmt.Sprintf("invalid conversionValue %q", value)}
	}
	if amount.Int.Sign() < 0 {
		return CurrencyDecision{Warning: fmt.Sprintf("negative conversionValue %q", value)}
	}

	return CurrencyDecision{Include: true, CurrencyCode: code, Amount: amount}
}
