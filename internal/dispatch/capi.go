package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

// CAPI request headers.
const (
	headerVersion     = "LinkedIn-Version"
	headerProtocol    = "X-Restli-Protocol-Version"
	headerMethod      = "X-RestLi-Method"
	restliProtocol    = "2.0.0"
	restliBatchCreate = "BATCH_CREATE"
)

// BatchRequest is the body of a batch create call.
type BatchRequest struct {
	Elements []any `json:"elements"`
}

// BatchResponse is the per-element breakdown returned by a batch call.
type BatchResponse struct {
	Elements []ElementStatus `json:"elements"`
}

// ElementStatus is the result of one element in a batch.
type ElementStatus struct {
	Status int           `json:"status"`
	ID     string        `json:"id,omitempty"`
	Error  *ElementError `json:"error,omitempty"`
}

// ElementError describes why an element was rejected.
type ElementError struct {
	Message string `json:"message"`
}

// CAPITransport posts batches of conversion events.
type CAPITransport struct {
	url         string
	accessToken string
	apiVersion  string
	httpClient  HTTPDoer
}

// NewCAPITransport creates a Conversions API transport.
func NewCAPITransport(url, accessToken, apiVersion string, timeout time.Duration) *CAPITransport {
	return &CAPITransport{
		url:         url,
		accessToken: accessToken,
		apiVersion:  apiVersion,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (t *CAPITransport) SetHTTPClient(client HTTPDoer) {
	t.httpClient = client
}

// Send posts all units in one call and maps the per-element statuses back.
func (t *CAPITransport) Send(ctx context.Context, units []core.DispatchUnit) []core.DispatchResult {
	if len(units) == 0 {
		return nil
	}

	req := BatchRequest{Elements: make([]any, len(units))}
	for i, u := range units {
		req.Elements[i] = u.Payload
	}

	headers := map[string]string{
		"Authorization": "Bearer " + t.accessToken,
		headerVersion:   t.apiVersion,
		headerProtocol:  restliProtocol,
		headerMethod:    restliBatchCreate,
	}

	resp, err := postJSON(ctx, t.httpClient, t.url, headers, req)
	if err != nil {
		return failAll(len(units), core.NetworkErrorCode, err.Error())
	}

	var parsed BatchResponse
	if jerr := json.Unmarshal(resp.body, &parsed); jerr == nil && len(parsed.Elements) == len(units) {
		return elementResults(parsed.Elements)
	}

	if !isSuccess(resp.status) {
		return failAll(len(units), resp.status, apiError(resp.status, resp.body))
	}

	out := make([]core.DispatchResult, len(units))
	for i := range out {
		out[i] = core.Sent(resp.status, "")
	}
	return out
}

func elementResults(elems []ElementStatus) []core.DispatchResult {
	out := make([]core.DispatchResult, len(elems))
	for i, e := range elems {
		if isSuccess(e.Status) {
			out[i] = core.Sent(e.Status, e.ID)
			continue
		}
		msg := fmt.Sprintf("element rejected (status %d)", e.Status)
		if e.Error != nil && e.Error.Message != "" {
			msg = TruncateRaw(e.Error.Message, RawBodyLimit)
		}
		out[i] = core.Failed(e.Status, msg)
	}
	return out
}
