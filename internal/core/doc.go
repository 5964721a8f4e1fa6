// Package core provides the validation, payload and accounting logic for
// conversion replays.
//
// It has no transport dependencies and can be driven by the CLI, the
// dispatcher or tests without modification.
//
// # Pipeline
//
//  1. [ReadFile] or [Parse] turns CSV text into [RawRecord] values
//  2. [Validate] accepts or rejects each record and decides which optional
//     groups are suppressed
//  3. [BuildFlat] or [BuildNested] renders the wire payload
//  4. A [RunState] folds every [DispatchOutcome] into an [Aggregator]
//
// # Field groups
//
//   - identity: email, required
//   - userInfo: firstName, lastName, title, companyName, countryCode
//   - currency: currencyCode and conversionValue, sent as a pair or not at all
//   - timestamp: conversionTime in epoch milliseconds, 90-day window
//
// # Error Handling
//
// Delivery failures are grouped with [MapFailure]:
//
//   - NET: no response (refused, timeout, reset)
//   - HTTP: non-2xx status without a more specific message
//   - CAPI: per-element errors from the Conversions API
//   - VAL, FILE, CFG, RUN: validation, input and run errors
package core
