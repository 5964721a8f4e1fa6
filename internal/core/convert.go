package core

// convert.go cleans raw CRM cell values and converts them to typed values.
//
// CRM exports carry a few artifacts that the parser removes before any
// validation happens:
//   - Surrounding quotes left over after tokenizing
//   - The "[not provided]" sentinel for blank fields
//   - ISO-8601 timestamps where epoch milliseconds are expected

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// NotProvided is the sentinel the CRM writes for blank fields.
const NotProvided = "[not provided]"

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// isoTimestampRegex matches YYYY-MM-DDTHH:MM:SS with optional .mmm and a Z suffix.
var isoTimestampRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{3})?Z$`)

// CleanCell trims whitespace, strips one layer of surrounding double quotes
// and maps the "[not provided]" sentinel to "".
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == NotProvided {
		return ""
	}
	return s
}

// IsISOTimestamp reports whether s looks like an export timestamp.
func IsISOTimestamp(s string) bool {
	return isoTimestampRegex.MatchString(s)
}

// ISOToEpochMillis converts an export timestamp to epoch milliseconds.
func ISOToEpochMillis(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// ParseEpochMillis parses an integer epoch-millisecond value.
func ParseEpochMillis(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ToPgNumeric converts a string to pgtype.Numeric.
// Handles currency symbols and thousands separators.
func ToPgNumeric(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// NumericString renders a numeric the way it was written, e.g. "10" or "10.50".
// Returns "" for invalid values.
func NumericString(n pgtype.Numeric) string {
	if !n.Valid || n.Int == nil {
		return ""
	}
	v, err := n.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
