package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

// WebhookTransport posts one flat payload per call.
type WebhookTransport struct {
	url        string
	httpClient HTTPDoer
}

// NewWebhookTransport creates a webhook transport with a client using timeout.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (t *WebhookTransport) SetHTTPClient(client HTTPDoer) {
	t.httpClient = client
}

// Send posts each unit's payload. It is normally called with one unit.
func (t *WebhookTransport) Send(ctx context.Context, units []core.DispatchUnit) []core.DispatchResult {
	out := make([]core.DispatchResult, len(units))
	for i, u := range units {
		out[i] = t.sendOne(ctx, u)
	}
	return out
}

func (t *WebhookTransport) sendOne(ctx context.Context, u core.DispatchUnit) core.DispatchResult {
	resp, err := postJSON(ctx, t.httpClient, t.url, nil, u.Payload)
	if err != nil {
		return core.Failed(core.NetworkErrorCode, err.Error())
	}
	if !isSuccess(resp.status) {
		return core.Failed(resp.status, apiError(resp.status, resp.body))
	}
	return core.Sent(resp.status, "")
}
