package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"momento/internal/observability"
	"momento/internal/resilience"

	gobreaker "github.com/sony/gobreaker/v2"
)

const breakerName = "transcoder"

// HTTPDispatcher submits jobs to a remote transcoding service.
type HTTPDispatcher struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPDispatcher creates a dispatcher posting jobs to url.
func NewHTTPDispatcher(url string, timeout time.Duration, settings resilience.BreakerSettings) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker[struct{}](breakerName, settings),
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, job Job) error {
	ctx, span := observability.StartClientSpan(ctx, breakerName, "dispatch")
	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.post(ctx, job)
	})
	observability.EndSpan(span, err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (d *HTTPDispatcher) post(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transcoder returned status %d", resp.StatusCode)
	}
	return nil
}
