package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudguard/inference"
	"fraudguard/ml"
)

func sampleResult(v inference.Verdict, fraud float64) inference.PredictionResult {
	return inference.PredictionResult{
		Verdict:       v,
		Label:         ml.Label(v),
		Probabilities: ml.ProbabilityPair{NotFraud: 1 - fraud, Fraud: fraud},
		Features:      ml.FeatureVector{0, 0, 0, 0, 0, 120},
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()

	m.ObservePrediction(sampleResult(inference.Fraudulent, 0.93))
	m.ObservePrediction(sampleResult(inference.Legitimate, 0.02))
	m.ObservePrediction(sampleResult(inference.Legitimate, 0.04))
	m.ObserveFailure(fmt.Errorf("%w: expected 6 fields", inference.ErrInvalidInput))
	m.ObserveFailure(errors.New("boom"))
	m.SetModelAvailable(true)
	m.ArtifactChanged()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("fraudulent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("legitimate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inferenceErrors.WithLabelValues("invalid_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inferenceErrors.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelAvailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactChanges))

	m.ObserveHTTP("POST", "/api/predict", 200, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/api/predict", "200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "fraudguard_predictions_total")
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "model_unavailable", FailureReason(fmt.Errorf("%w: %w", inference.ErrModelUnavailable, os.ErrNotExist)))
	assert.Equal(t, "invalid_model_output", FailureReason(fmt.Errorf("%w: label 7", inference.ErrInvalidModelOutput)))
	assert.Equal(t, "other", FailureReason(context.Canceled))
}

func TestHubBroadcastsPredictions(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()
	hub.SetModelFingerprint("deadbeef")

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.ObservePrediction(sampleResult(inference.Fraudulent, 0.9))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, PredictionEvent, msg.Type)
	assert.NotEmpty(t, msg.ID)

	var payload PredictionMessage
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "fraudulent", payload.Verdict)
	assert.InDelta(t, 0.9, payload.Fraud, 1e-9)
	assert.Equal(t, 120.0, payload.Amount)
	assert.Equal(t, "deadbeef", payload.ModelFingerprint)
}

func TestHubSubscriptionFilter(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Topic: string(ModelStatus)}))
	// Give the read pump time to apply the subscription.
	time.Sleep(50 * time.Millisecond)

	hub.ObservePrediction(sampleResult(inference.Legitimate, 0.1))
	require.NoError(t, hub.Publish(ModelStatus, ModelStatusMessage{Available: true, Path: "m.json", Message: "changed"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, ModelStatus, msg.Type)
}

func TestArtifactWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	changes := make(chan ArtifactChange, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchArtifact(ctx, path, nil, func(c ArtifactChange) { changes <- c })
	require.NoError(t, err)
	defer w.Close()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"x"}`), 0o644))

	select {
	case c := <-changes:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, c.Path)
		assert.NotEmpty(t, c.Op)
	case <-time.After(3 * time.Second):
		t.Fatal("no change event for the artifact")
	}
}

func TestHubCheckOrigin(t *testing.T) {
	hub := NewHub(nil, []string{"https://example.org"})
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://example.org"}})
	require.NoError(t, err)
	conn.Close()

	// Pages served by the same host are always accepted.
	conn, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {srv.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, OriginAllowed([]string{"*"}, "https://any.example"))
	assert.True(t, OriginAllowed([]string{"https://a.example", "https://b.example"}, "https://b.example"))
	assert.False(t, OriginAllowed(nil, "https://a.example"))
}
