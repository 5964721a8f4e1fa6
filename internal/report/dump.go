// Package report writes the artifacts of a replay run: the sent and failed
// record dumps, a text summary, and optionally copies them to S3.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/replay"
)

// SentColumns precede the original columns in the sent dump.
var SentColumns = []string{"run_id", "record_index", "line", "status_code", "response_id", "attempt", "sent_at"}

// FailedColumns precede the original columns in the failed dump.
var FailedColumns = []string{"reason"}

// WriteSent writes one row per record that was sent. It returns the number
// of data rows written.
func WriteSent(w io.Writer, res *replay.Result) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, SentColumns...), res.Header...)); err != nil {
		return 0, fmt.Errorf("write sent header: %w", err)
	}

	n := 0
	for _, o := range res.Outcomes {
		if o.Result.Kind != core.ResultSent {
			continue
		}
		row := []string{
			res.RunID,
			strconv.Itoa(o.Unit.RecordIndex),
			strconv.Itoa(o.Unit.Record.Line),
			strconv.Itoa(o.Result.StatusCode),
			o.Result.ResponseID,
			strconv.Itoa(o.Attempt),
			o.At.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(append(row, values(o.Unit.Record, res.Header)...)); err != nil {
			return n, fmt.Errorf("write sent row: %w", err)
		}
		n++
	}

	cw.Flush()
	return n, cw.Error()
}

// WriteFailed writes one row per record that failed or was skipped, with the
// reason first. It returns the number of data rows written.
func WriteFailed(w io.Writer, res *replay.Result) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, FailedColumns...), res.Header...)); err != nil {
		return 0, fmt.Errorf("write failed header: %w", err)
	}

	n := 0
	for _, o := range res.Outcomes {
		if o.Result.Kind == core.ResultSent {
			continue
		}
		row := append([]string{Reason(o)}, values(o.Unit.Record, res.Header)...)
		if err := cw.Write(row); err != nil {
			return n, fmt.Errorf("write failed row: %w", err)
		}
		n++
	}

	cw.Flush()
	return n, cw.Error()
}

// Reason renders why a record was not sent, e.g.
// "line 4: failed (status 400): Member not found".
func Reason(o core.DispatchOutcome) string {
	prefix := ""
	if o.Unit.Record.Line > 0 {
		prefix = fmt.Sprintf("line %d: ", o.Unit.Record.Line)
	}

	switch o.Result.Kind {
	case core.ResultSkipped:
		return prefix + "skipped: " + o.Result.Message
	case core.ResultFailed:
		if o.Result.StatusCode == core.NetworkErrorCode {
			return prefix + "failed (network error): " + o.Result.Message
		}
		return fmt.Sprintf("%sfailed (status %d): %s", prefix, o.Result.StatusCode, o.Result.Message)
	default:
		return ""
	}
}

// values returns the record's values in header order.
func values(rec core.RawRecord, header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = rec.Get(col)
	}
	return out
}
