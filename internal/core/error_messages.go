package core

// # Failure Codes Reference
//
// Delivery failures and run errors are mapped to short codes so a summary
// can group them and an operator can look them up here.
//
// # Network (NET001-NET099)
//
//	NET001 - Connection refused: The endpoint is not accepting connections
//	         Action: Check the endpoint URL and that the receiver is running
//	         Patterns: "connection refused"
//
//	NET002 - Timeout: The endpoint did not answer within the request timeout
//	         Action: Lower the rate limit or raise HTTP_TIMEOUT
//	         Patterns: "timeout", "deadline exceeded"
//
//	NET003 - Host not found: The endpoint host could not be resolved
//	         Action: Check the endpoint URL
//	         Patterns: "no such host"
//
//	NET004 - Connection reset: The connection dropped mid-request
//	         Action: Retry the failed records
//	         Patterns: "connection reset", "eof"
//
// # HTTP status (HTTP001-HTTP099), matched on the status code
//
//	HTTP400 - Bad request: The endpoint rejected the payload
//	HTTP401 - Unauthorized: The access token was rejected
//	HTTP403 - Forbidden: The token lacks permission for this conversion
//	HTTP404 - Not found: The endpoint or conversion does not exist
//	HTTP422 - Unprocessable: The payload was well-formed but refused
//	HTTP429 - Rate limited: The endpoint throttled the run
//	HTTP5XX - Server error: The endpoint failed
//
// # CAPI element errors (CAPI001-CAPI099), matched on the element message
//
//	CAPI001 - Unmatched member: The hashed email did not match a member
//	          Patterns: "member", "not found"
//	CAPI002 - Old event: The conversion happened too long ago
//	          Patterns: "conversionhappenedat", "too old"
//	CAPI003 - Duplicate event: The event was already recorded
//	          Patterns: "duplicate"
//
// # Run errors (VAL/FILE/CFG)
//
//	VAL001 - Missing email          Patterns: "missing required email"
//	VAL002 - Outside recency window Patterns: "outside the 90-day window", "in the future"
//	VAL003 - Invalid timestamp      Patterns: "invalid conversiontime"
//	FILE001 - File too large        Patterns: "file too large"
//	FILE002 - Empty file            Patterns: "empty file"
//	CFG001 - Invalid configuration  Patterns: "validation failed"
//	RUN001 - Cancelled              Patterns: "run cancelled", "context canceled"
//
// # Default (ERR000)
//
// Fallback when nothing matches. Check the failed dump for the raw message.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins.

import (
	"fmt"
	"net/http"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Code for the summary and support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are checked in order. Specific patterns come first.
var errorPatterns = []errorPattern{
	// Network
	{"connection refused", UserMessage{"The endpoint is not accepting connections", "Check the endpoint URL and that the receiver is running", "NET001"}},
	{"deadline exceeded", UserMessage{"The endpoint did not answer in time", "Lower the rate limit or raise HTTP_TIMEOUT", "NET002"}},
	{"timeout", UserMessage{"The endpoint did not answer in time", "Lower the rate limit or raise HTTP_TIMEOUT", "NET002"}},
	{"no such host", UserMessage{"The endpoint host could not be resolved", "Check the endpoint URL", "NET003"}},
	{"connection reset", UserMessage{"The connection dropped mid-request", "Retry the failed records", "NET004"}},
	{"eof", UserMessage{"The connection dropped mid-request", "Retry the failed records", "NET004"}},

	// CAPI element messages
	{"duplicate", UserMessage{"The event was already recorded", "No action needed", "CAPI003"}},
	{"conversionhappenedat", UserMessage{"The conversion time was rejected", "Enable RESET_OLD_TIMESTAMPS or drop old rows", "CAPI002"}},
	{"too old", UserMessage{"The conversion time was rejected", "Enable RESET_OLD_TIMESTAMPS or drop old rows", "CAPI002"}},
	{"member", UserMessage{"The hashed email did not match a member", "No action needed", "CAPI001"}},

	// Validation
	{"missing required email", UserMessage{"The record has no email", "Fill the email column", "VAL001"}},
	{"outside the 90-day window", UserMessage{"The conversion time is older than 90 days", "Enable RESET_OLD_TIMESTAMPS to send with the current time", "VAL002"}},
	{"in the future", UserMessage{"The conversion time is in the future", "Check the export time zone", "VAL002"}},
	{"invalid conversiontime", UserMessage{"The conversion time is not a timestamp", "Use epoch milliseconds or ISO-8601 UTC", "VAL003"}},

	// File and run
	{"file too large", UserMessage{"File exceeds maximum size limit (100MB)", "Split the file into smaller chunks", "FILE001"}},
	{"empty file", UserMessage{"The file has no data rows", "Export the CSV again with data rows", "FILE002"}},
	{"validation failed", UserMessage{"The configuration is invalid", "Fix the listed settings and run again", "CFG001"}},
	{"run cancelled", UserMessage{"The run was stopped before this record was sent", "Run again with the skipped records", "RUN001"}},
	{"context canceled", UserMessage{"The run was stopped before this record was sent", "Run again with the skipped records", "RUN001"}},
}

// statusMessages maps HTTP status codes that carry their own meaning.
var statusMessages = map[int]UserMessage{
	http.StatusBadRequest:          {"The endpoint rejected the payload", "Check the failed dump for the field named in the error", "HTTP400"},
	http.StatusUnauthorized:        {"The access token was rejected", "Generate a new access token", "HTTP401"},
	http.StatusForbidden:           {"The token lacks permission for this conversion", "Check the token scopes and conversion ID", "HTTP403"},
	http.StatusNotFound:            {"The endpoint or conversion does not exist", "Check the endpoint URL and conversion ID", "HTTP404"},
	http.StatusUnprocessableEntity: {"The payload was refused", "Check the failed dump for the field named in the error", "HTTP422"},
	http.StatusTooManyRequests:     {"The endpoint throttled the run", "Lower the requests per minute", "HTTP429"},
}

var serverErrorMessage = UserMessage{"The endpoint failed", "Retry the failed records later", "HTTP5XX"}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the failed dump for the raw message",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	return matchPattern(err.Error())
}

// MapFailure classifies a failed delivery by its message and status code.
// Message patterns are checked first so an element error inside a 400 keeps
// its specific code; status codes are the fallback.
func MapFailure(status int, message string) UserMessage {
	if msg := matchPattern(message); msg.Code != defaultMessage.Code {
		return msg
	}
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	if status >= 500 {
		return serverErrorMessage
	}
	return defaultMessage
}

func matchPattern(s string) UserMessage {
	s = strings.ToLower(s)
	for _, ep := range errorPatterns {
		if strings.Contains(s, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// Describe returns the catalogue entry for a code, or the default entry.
func Describe(code string) UserMessage {
	for _, ep := range errorPatterns {
		if ep.msg.Code == code {
			return ep.msg
		}
	}
	for _, m := range statusMessages {
		if m.Code == code {
			return m
		}
	}
	if code == serverErrorMessage.Code {
		return serverErrorMessage
	}
	return defaultMessage
}
