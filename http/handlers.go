package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fraudguard/db"
	"fraudguard/inference"
	"fraudguard/ml"
	"fraudguard/monitoring"
	"fraudguard/presentation"
)

// RegisterHandlers 注册JSON接口
func RegisterHandlers(mux *http.ServeMux, app *App) {
	h := &apiHandlers{app: app}
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/presets", h.handlePresets)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	if app.Hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", app.Hub.HandleWebSocket)
	}
	if app.Metrics != nil {
		mux.Handle("GET /metrics", app.Metrics.Handler())
	}
}

type apiHandlers struct {
	app *App
}

// predictRequest accepts either the positional form or the named form.
type predictRequest struct {
	Fields []float64 `json:"fields"`
	ml.TransactionFeatures
}

type predictResponse struct {
	Verdict       inference.Verdict      `json:"verdict"`
	Label         ml.Label               `json:"label"`
	Probabilities ml.ProbabilityPair     `json:"probabilities"`
	Features      ml.TransactionFeatures `json:"features"`
	View          presentation.View      `json:"view"`
	LatencyMS     float64                `json:"latency_ms"`
	RequestID     string                 `json:"request_id,omitempty"`
}

type modelResponse struct {
	Available    bool              `json:"available"`
	Kind         string            `json:"kind"`
	Path         string            `json:"path"`
	Artifact     *ml.ArtifactInfo  `json:"artifact,omitempty"`
	Error        string            `json:"error,omitempty"`
	FeatureNames []string          `json:"feature_names"`
	Options      inference.Options `json:"options"`
	RecentLoads  []db.ModelLoad    `json:"recent_loads,omitempty"`
}

func (h *apiHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.app.Facade.Available() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  errorText(h.app.Facade.LoadError()),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandlers) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, inference.Presets())
}

func (h *apiHandlers) handleModel(w http.ResponseWriter, r *http.Request) {
	resp := modelResponse{
		Available:    h.app.Facade.Available(),
		Kind:         h.app.Model.Kind,
		Path:         h.app.Model.Path,
		Artifact:     h.app.Model.Info,
		FeatureNames: ml.FeatureNames(),
		Options:      h.app.Facade.Options(),
	}
	if h.app.Model.Error != nil {
		resp.Error = h.app.Model.Error.Error()
	}
	if h.app.LoadLog != nil {
		loads, err := h.app.LoadLog.RecentModelLoads(10)
		if err != nil {
			h.app.Logger.Warn("failed to read model load log", zap.Error(err))
		} else {
			resp.RecentLoads = loads
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *apiHandlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, positional, err := decodePredictRequest(r.Body)
	if err != nil {
		writeInferenceError(w, h.app.Logger, err)
		return
	}

	var result inference.PredictionResult
	if positional {
		result, err = h.app.Facade.RunInference(r.Context(), req.Fields)
	} else {
		result, err = h.app.Facade.RunFeatures(r.Context(), req.TransactionFeatures)
	}
	if err != nil {
		writeInferenceError(w, h.app.Logger, err)
		return
	}

	resp := predictResponse{
		Verdict:       result.Verdict,
		Label:         result.Label,
		Probabilities: result.Probabilities,
		Features:      result.Features.Features(),
		View:          h.app.Formatter.Present(result),
		RequestID:     GetRequestID(r.Context()),
	}
	if start := GetStartTime(r.Context()); !start.IsZero() {
		resp.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodePredictRequest 解析预测请求. positional reports whether the body used
// "fields"; mixing it with named keys is rejected.
func decodePredictRequest(body io.Reader) (predictRequest, bool, error) {
	var req predictRequest
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return req, false, fmt.Errorf("%w: malformed request body: %v", inference.ErrInvalidInput, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, false, fmt.Errorf("%w: malformed request body: %v", inference.ErrInvalidInput, err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return req, false, fmt.Errorf("%w: request body must be an object", inference.ErrInvalidInput)
	}
	positional := false
	for k := range keys {
		if strings.EqualFold(k, "fields") {
			positional = true
		}
	}
	if positional && len(keys) > 1 {
		return req, false, fmt.Errorf("%w: send either fields or named features, not both", inference.ErrInvalidInput)
	}
	return req, positional, nil
}

// writeInferenceError 将推理错误映射为HTTP状态码
func writeInferenceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := monitoring.FailureReason(err)
	switch {
	case errors.Is(err, inference.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, inference.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, code, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timeout")
	case errors.Is(err, inference.ErrInvalidModelOutput):
		logger.Error("model broke its output contract", zap.Error(err))
		writeError(w, http.StatusInternalServerError, code, err.Error())
	default:
		logger.Error("inference failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, code, "inference failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
