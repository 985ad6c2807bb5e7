package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single delivery attempt
const DefaultTimeout = 20 * time.Millisecond

// HTTPTransport POSTs reports as JSON to a single URL.  Attempts are not
// retried, the publisher tries again on a later tick.
type HTTPTransport struct {
	url    string
	client *resty.Client
}

// NewHTTPTransport returns a transport posting to url with the given timeout,
// or DefaultTimeout when zero
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &HTTPTransport{
		url:    url,
		client: client,
	}
}

// Send posts the report, any non 2xx status is a failure
func (h *HTTPTransport) Send(ctx context.Context, r Report) error {

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(r).
		Post(h.url)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode())
	}

	return nil
}

// Close releases idle connections
func (h *HTTPTransport) Close() error {
	h.client.GetClient().CloseIdleConnections()
	return nil
}
