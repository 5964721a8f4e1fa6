// Package dispatch delivers payloads to the outbound channels at a fixed
// rate and reports one result per unit.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

// RawBodyLimit is how many characters of a response body are kept in a
// failure message.
const RawBodyLimit = 512

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies it; tests substitute their own.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport performs one network call for a group of units and returns one
// result per unit, in unit order. Single-mode channels are always called
// with exactly one unit.
type Transport interface {
	Send(ctx context.Context, units []core.DispatchUnit) []core.DispatchResult
}

// response is what a transport keeps from an HTTP exchange.
type response struct {
	status int
	body   []byte
}

// postJSON marshals body, POSTs it and reads the whole response.
// A non-nil error means no HTTP response was received.
func postJSON(ctx context.Context, client HTTPDoer, url string, headers map[string]string, body any) (*response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &response{status: resp.StatusCode, body: respBody}, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// apiError formats a non-2xx response for the failed dump.
func apiError(status int, body []byte) string {
	return fmt.Sprintf("API error (status %d): %s", status, TruncateRaw(string(body), RawBodyLimit))
}

// TruncateRaw trims the supplied string to the specified rune limit. If limit
// is zero or negative it returns an empty string.
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}

// failAll returns the same failure for every unit.
func failAll(n, status int, msg string) []core.DispatchResult {
	out := make([]core.DispatchResult, n)
	for i := range out {
		out[i] = core.Failed(status, msg)
	}
	return out
}
