package vision

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

func TestTopDetections(t *testing.T) {
	input := []schemas.Detection{
		{Class: "low", Confidence: 0.1},
		{Class: "high", Confidence: 0.9},
		{Class: "tie-a", Confidence: 0.5},
		{Class: "tie-b", Confidence: 0.5},
	}

	got := TopDetections(input, 3)

	want := []schemas.Detection{
		{Class: "high", Confidence: 0.9},
		{Class: "tie-a", Confidence: 0.5},
		{Class: "tie-b", Confidence: 0.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TopDetections mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "low", input[0].Class, "input must not be reordered")
}

func TestTopDetections_Caps(t *testing.T) {
	assert.Nil(t, TopDetections(nil, MaxPromptDetections))
	assert.Nil(t, TopDetections([]schemas.Detection{{Class: "a"}}, 0))

	many := make([]schemas.Detection, 25)
	for i := range many {
		many[i] = schemas.Detection{Confidence: float64(i) / 25}
	}
	got := TopDetections(many, MaxPromptDetections)
	require.Len(t, got, MaxPromptDetections)
	assert.InDelta(t, 24.0/25, got[0].Confidence, 1e-9)
}

func TestTopTextRegions(t *testing.T) {
	many := make([]schemas.TextRegion, 20)
	for i := range many {
		many[i] = schemas.TextRegion{Text: string(rune('a' + i)), Confidence: float64(i%5) / 5}
	}

	got := TopTextRegions(many, MaxPromptTextRegions)

	require.Len(t, got, MaxPromptTextRegions)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
	}
	assert.Equal(t, "e", got[0].Text, "first of the highest-confidence regions keeps its position")
}

func newTestProcessor(t *testing.T, url string, rps float64) *HTTPProcessor {
	t.Helper()
	p, err := NewHTTPProcessor(config.VisionConfig{Endpoint: url, Timeout: 5 * time.Second, RequestsPerSecond: rps}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestHTTPProcessor_Process(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"screenshot":"aGVsbG8=","url":"https://example.com"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"detections": [{"class": "button", "confidence": 0.87, "bbox": [1, 2, 3, 4]}],
			"text_regions": [{"text": "Sign in", "confidence": 0.99, "bbox": [5, 6, 7, 8]}]
		}`))
	}))
	defer server.Close()

	p := newTestProcessor(t, server.URL, 0)
	got, err := p.Process(context.Background(), "aGVsbG8=", &schemas.Snapshot{URL: "https://example.com"})
	require.NoError(t, err)

	want := &schemas.VisionAnnotations{
		Detections:  []schemas.Detection{{Class: "button", Confidence: 0.87, BBox: schemas.BoundingBox{1, 2, 3, 4}}},
		TextRegions: []schemas.TextRegion{{Text: "Sign in", Confidence: 0.99, BBox: schemas.BoundingBox{5, 6, 7, 8}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPProcessor_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newTestProcessor(t, server.URL, 0).Process(context.Background(), "x", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("bad json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer server.Close()

		_, err := newTestProcessor(t, server.URL, 0).Process(context.Background(), "x", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode response")
	})

	t.Run("empty screenshot", func(t *testing.T) {
		_, err := newTestProcessor(t, "http://127.0.0.1:1", 0).Process(context.Background(), "", nil)
		assert.ErrorContains(t, err, "empty screenshot")
	})

	t.Run("missing endpoint", func(t *testing.T) {
		_, err := NewHTTPProcessor(config.VisionConfig{}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestHTTPProcessor_RateLimiterHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detections":[],"text_regions":[]}`))
	}))
	defer server.Close()

	p := newTestProcessor(t, server.URL, 0.001)
	_, err := p.Process(context.Background(), "x", nil)
	require.NoError(t, err, "the first request uses the initial burst")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Process(ctx, "x", nil)
	assert.ErrorContains(t, err, "rate limiter wait")
}
