package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/config"
	vhttp "github.com/shashiranjanraj/ventas/pkg/http"
)

// HTTPCommitter talks to the store server's REST API. It is the device's
// Committer and FailureSink.
type HTTPCommitter struct {
	BaseURL  string
	Token    string
	DeviceID string
	Timeout  time.Duration
	// Attempts per request when the connection fails; RetryWait is the
	// first backoff.
	Attempts  int
	RetryWait time.Duration
}

func NewHTTPCommitter(baseURL, token, deviceID string) *HTTPCommitter {
	return &HTTPCommitter{
		BaseURL:   baseURL,
		Token:     token,
		DeviceID:  deviceID,
		Timeout:   10 * time.Second,
		Attempts:  3,
		RetryWait: 250 * time.Millisecond,
	}
}

// HTTPCommitterFromConfig reads SYNC_SERVER_URL, SYNC_TOKEN and DEVICE_ID.
func HTTPCommitterFromConfig() *HTTPCommitter {
	return NewHTTPCommitter(config.SyncServerURL(), config.SyncToken(), config.DeviceID())
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// CommitSale posts the draft with its idempotency key as a header. A lost
// connection, a 5xx or a rejected token is transient; a coded 4xx is
// mapped back to the server's error. A non-2xx without a code did not come
// from the sale API (a proxy page, a wrong SYNC_SERVER_URL) and is
// transient too, so the draft stays queued.
func (c *HTTPCommitter) CommitSale(ctx context.Context, draft models.SaleDraft) (*models.Sale, error) {
	req := vhttp.Post(c.BaseURL+"/api/sales").
		Bearer(c.Token).
		Header("X-Device-ID", c.DeviceID).
		Body(draft).
		Timeout(c.Timeout).
		Retry(c.Attempts, c.RetryWait).
		WithContext(ctx)
	if draft.IdempotencyKey != "" {
		req = req.Header("Idempotency-Key", draft.IdempotencyKey)
	}

	resp, err := req.Send()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrTransient, err)
	}

	var env envelope
	decodeErr := resp.JSON(&env)

	switch {
	case resp.OK():
		if decodeErr != nil {
			// Committed or not, the reply is unreadable; retrying with the
			// same key settles it.
			return nil, fmt.Errorf("%w: %v", services.ErrTransient, decodeErr)
		}
		var sale models.Sale
		if err := json.Unmarshal(env.Data, &sale); err != nil {
			return nil, fmt.Errorf("%w: decode sale: %v", services.ErrTransient, err)
		}
		sale.Replayed = sale.Replayed || resp.StatusCode == http.StatusOK
		return &sale, nil

	case retryableStatus(resp.StatusCode):
		return nil, fmt.Errorf("%w: server answered %d: %s", services.ErrTransient, resp.StatusCode, env.Message)

	case env.Code != "":
		return nil, services.FromCode(env.Code, env.Message)

	default:
		return nil, fmt.Errorf("%w: %w", services.ErrTransient, resp.Throw())
	}
}

// Report files a failed draft with the server. The server keys reports by
// device and local id, so repeats are harmless.
func (c *HTTPCommitter) Report(ctx context.Context, p offline.PendingLocalSale) error {
	body := models.SyncFailureReport{
		DeviceID: c.DeviceID,
		LocalID:  p.LocalID,
		Code:     p.FailureCode,
		Reason:   p.FailureReason,
		Draft:    p.Draft,
	}
	if p.FailedAt != nil {
		body.FailedAt = *p.FailedAt
	}

	resp, err := vhttp.Post(c.BaseURL+"/api/sync/failures").
		Bearer(c.Token).
		Header("X-Device-ID", c.DeviceID).
		Body(body).
		Timeout(c.Timeout).
		Retry(c.Attempts, c.RetryWait).
		WithContext(ctx).
		Send()
	if err != nil {
		return err
	}
	return resp.Throw()
}

func retryableStatus(code int) bool {
	return code >= 500 ||
		code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code == http.StatusUnauthorized ||
		code == http.StatusForbidden
}

// HTTPProbe checks the server's /health endpoint. It fires
// event.DeviceOnline when the answer turns from offline to online.
type HTTPProbe struct {
	URL       string
	Timeout   time.Duration
	Attempts  int
	RetryWait time.Duration

	reach reachability
}

func NewHTTPProbe(baseURL string) *HTTPProbe {
	return &HTTPProbe{
		URL:       baseURL + "/health",
		Timeout:   3 * time.Second,
		Attempts:  2,
		RetryWait: 200 * time.Millisecond,
	}
}

func (p *HTTPProbe) IsOnline(ctx context.Context) bool {
	resp, err := vhttp.Get(p.URL).
		Timeout(p.Timeout).
		Retry(p.Attempts, p.RetryWait).
		WithContext(ctx).
		Send()
	return p.reach.observe(err == nil && resp.OK(), p.URL)
}
