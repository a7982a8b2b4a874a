package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"momento/internal/models"
	"momento/internal/observability"
	"momento/internal/resilience"

	gobreaker "github.com/sony/gobreaker/v2"
)

const breakerName = "moderation-classifier"

// HTTPClassifier calls a remote classifier that accepts a Request as JSON and
// answers with a Verdict.
type HTTPClassifier struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[models.Verdict]
}

// NewHTTPClassifier creates a classifier client. timeout bounds each call.
func NewHTTPClassifier(url, apiKey string, timeout time.Duration, settings resilience.BreakerSettings) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker[models.Verdict](breakerName, settings),
	}
}

func (h *HTTPClassifier) Classify(ctx context.Context, req Request) (models.Verdict, error) {
	ctx, span := observability.StartClientSpan(ctx, breakerName, "classify")
	start := time.Now()

	verdict, err := h.breaker.Execute(func() (models.Verdict, error) {
		return h.call(ctx, req)
	})
	observability.ObserveSince(observability.ModerationLatency, start)
	observability.EndSpan(span, err)

	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return verdict, nil
}

func (h *HTTPClassifier) call(ctx context.Context, req Request) (models.Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.Verdict{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return models.Verdict{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return models.Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return models.Verdict{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var verdict models.Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&verdict); err != nil {
		return models.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return models.Verdict{}, fmt.Errorf("verdict confidence %v out of range", verdict.Confidence)
	}
	return verdict, nil
}
