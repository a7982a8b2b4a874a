package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"momento/internal/models"
	"momento/internal/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier("spoiler, Leak ")

	v, err := k.Classify(context.Background(), Request{Title: "Finale LEAK footage"})
	require.NoError(t, err)
	assert.False(t, v.IsSafe)
	assert.Equal(t, "blocked_term", v.ViolationType)

	v, err = k.Classify(context.Background(), Request{Title: "Sunset over the stage"})
	require.NoError(t, err)
	assert.True(t, v.IsSafe)
}

func TestKeywordClassifier_DefaultBlocklist(t *testing.T) {
	k := NewKeywordClassifier("")
	v, err := k.Classify(context.Background(), Request{Title: "NSFW afterparty"})
	require.NoError(t, err)
	assert.False(t, v.IsSafe)
}

func TestHTTPClassifier_Verdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint(42), req.PostID)
		_ = json.NewEncoder(w).Encode(models.Verdict{IsSafe: false, ViolationType: "nudity", Confidence: 0.97, Reason: "explicit"})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "key-1", time.Second, resilience.BreakerSettings{})
	v, err := c.Classify(context.Background(), Request{PostID: 42})
	require.NoError(t, err)
	assert.False(t, v.IsSafe)
	assert.Equal(t, "nudity", v.ViolationType)
	assert.InDelta(t, 0.97, v.Confidence, 1e-9)
}

func TestHTTPClassifier_FailuresAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", time.Second, resilience.BreakerSettings{MinRequests: 2, OpenTimeout: time.Hour})
	for i := 0; i < 3; i++ {
		_, err := c.Classify(context.Background(), Request{PostID: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// The breaker is open now; the upstream is not even called.
	_, err := c.Classify(context.Background(), Request{PostID: 1})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, resilience.IsRejected(err))
}

func TestHTTPClassifier_RejectsBadConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"is_safe":true,"confidence":4}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", time.Second, resilience.BreakerSettings{})
	_, err := c.Classify(context.Background(), Request{PostID: 1})
	assert.ErrorIs(t, err, ErrUnavailable)
}
