package inference

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudguard/ml"
)

type fakeModel struct {
	label ml.Label
	probs ml.ProbabilityPair
	err   error

	predictCalls atomic.Int32
	probCalls    atomic.Int32
	lastSeen     atomic.Pointer[ml.FeatureVector]
}

func (f *fakeModel) Predict(v ml.FeatureVector) (ml.Label, error) {
	f.predictCalls.Add(1)
	f.lastSeen.Store(&v)
	return f.label, f.err
}

func (f *fakeModel) PredictProbabilities(v ml.FeatureVector) (ml.ProbabilityPair, error) {
	f.probCalls.Add(1)
	return f.probs, f.err
}

func (f *fakeModel) calls() int {
	return int(f.predictCalls.Load() + f.probCalls.Load())
}

func newFacade(t *testing.T, model ml.Classifier, opts Options) *Facade {
	t.Helper()
	f, err := New(model, opts, nil)
	require.NoError(t, err)
	return f
}

func shippedFacade(t *testing.T, opts Options) *Facade {
	t.Helper()
	handle, err := ml.LoadModel(ml.KindLogisticRegression, "../models/fraud_detection_model.json", ml.LoadOptions{})
	require.NoError(t, err)
	return newFacade(t, handle, opts)
}

func TestRunInference_ReportsModelOutputAsIs(t *testing.T) {
	// Label says fraud while the fraud probability is below one half.
	model := &fakeModel{label: ml.LabelFraudulent, probs: ml.ProbabilityPair{NotFraud: 0.7, Fraud: 0.3}}
	f := newFacade(t, model, Options{})

	result, err := f.RunInference(context.Background(), []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	assert.Equal(t, Fraudulent, result.Verdict)
	assert.Equal(t, ml.LabelFraudulent, result.Label)
	assert.Equal(t, 0.3, result.Probabilities.Fraud)
	assert.Equal(t, ml.FeatureVector{1, 2, 3, 4, 5, 6}, result.Features)
	assert.Equal(t, int32(1), model.predictCalls.Load())
	assert.Equal(t, int32(1), model.probCalls.Load())
}

func TestRunInference_Arity(t *testing.T) {
	model := &fakeModel{probs: ml.ProbabilityPair{NotFraud: 1}}
	f := newFacade(t, model, Options{})

	for _, n := range []int{0, 1, 5, 7, 12} {
		_, err := f.RunInference(context.Background(), make([]float64, n))
		assert.ErrorIs(t, err, ErrInvalidInput, "length %d", n)
	}
	_, err := f.RunInference(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, model.calls())
}

func TestRunInference_NonFiniteNeverReachesModel(t *testing.T) {
	model := &fakeModel{probs: ml.ProbabilityPair{NotFraud: 1}}
	f := newFacade(t, model, Options{})

	inputs := [][]float64{
		{math.NaN(), 0, 0, 0, 0, 0},
		{0, math.Inf(1), 0, 0, 0, 0},
		{0, 0, 0, 0, 0, math.Inf(-1)},
	}
	for _, in := range inputs {
		_, err := f.RunInference(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Zero(t, model.calls())
}

type narrowModel struct {
	fakeModel
}

func (n *narrowModel) CheckInput(v ml.FeatureVector) error {
	return v.CheckFloat32()
}

func TestRunInference_BackendRangeNeverReachesModel(t *testing.T) {
	model := &narrowModel{fakeModel{probs: ml.ProbabilityPair{NotFraud: 1}}}
	f := newFacade(t, model, Options{})

	_, err := f.RunInference(context.Background(), []float64{0, 0, 0, 0, 0, 1e39})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, model.calls())

	_, err = f.RunInference(context.Background(), []float64{0, 0, 0, 0, 0, 1e30})
	require.NoError(t, err)
}

func TestRunInference_ClampAmount(t *testing.T) {
	model := &fakeModel{probs: ml.ProbabilityPair{NotFraud: 1}}

	clamped := newFacade(t, model, Options{ClampAmountNonNegative: true})
	result, err := clamped.RunInference(context.Background(), []float64{0, 0, 0, 0, 0, -25})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Features.Amount())
	assert.Equal(t, 0.0, model.lastSeen.Load().Amount())

	raw := newFacade(t, model, Options{})
	result, err = raw.RunInference(context.Background(), []float64{0, 0, 0, 0, 0, -25})
	require.NoError(t, err)
	assert.Equal(t, -25.0, result.Features.Amount())
	assert.Equal(t, -25.0, model.lastSeen.Load().Amount())
}

func TestRunInference_InvalidModelOutput(t *testing.T) {
	cases := map[string]*fakeModel{
		"label out of range": {label: 2, probs: ml.ProbabilityPair{NotFraud: 1}},
		"not normalized":     {probs: ml.ProbabilityPair{NotFraud: 0.6, Fraud: 0.6}},
		"negative":           {probs: ml.ProbabilityPair{NotFraud: 1.2, Fraud: -0.2}},
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFacade(t, model, Options{})
			_, err := f.RunInference(context.Background(), make([]float64, ml.FeatureCount))
			assert.ErrorIs(t, err, ErrInvalidModelOutput)
		})
	}
}

func TestRunInference_ModelErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	f := newFacade(t, &fakeModel{err: boom}, Options{})
	_, err := f.RunInference(context.Background(), make([]float64, ml.FeatureCount))
	assert.ErrorIs(t, err, boom)
}

func TestRunInference_Unavailable(t *testing.T) {
	_, loadErr := ml.LoadModel(ml.KindLogisticRegression, t.TempDir()+"/missing.json", ml.LoadOptions{})
	require.Error(t, loadErr)

	f := NewUnavailable(loadErr, Options{}, nil)
	assert.False(t, f.Available())

	_, err := f.RunInference(context.Background(), make([]float64, ml.FeatureCount))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	var artifactErr *ml.ArtifactError
	assert.ErrorAs(t, err, &artifactErr)

	// Unavailability wins over input validation.
	_, err = f.RunInference(context.Background(), []float64{math.NaN()})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestRunInference_CanceledContext(t *testing.T) {
	model := &fakeModel{probs: ml.ProbabilityPair{NotFraud: 1}}
	f := newFacade(t, model, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.RunInference(ctx, make([]float64, ml.FeatureCount))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.calls())
}

func TestRunInference_Cache(t *testing.T) {
	model := &fakeModel{probs: ml.ProbabilityPair{NotFraud: 0.9, Fraud: 0.1}}
	f := newFacade(t, model, Options{CacheSize: 8})

	in := []float64{1, 1, 1, 1, 1, 100}
	first, err := f.RunInference(context.Background(), in)
	require.NoError(t, err)
	second, err := f.RunInference(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), model.predictCalls.Load())
}

func TestRunInference_PresetScenarios(t *testing.T) {
	f := shippedFacade(t, Options{})
	for _, p := range Presets() {
		t.Run(string(p.Name), func(t *testing.T) {
			v := p.Features.Vector()
			result, err := f.RunInference(context.Background(), v[:])
			require.NoError(t, err)
			require.NoError(t, result.Probabilities.Validate())
			assert.InDelta(t, 1.0, result.Probabilities.NotFraud+result.Probabilities.Fraud, 1e-6)
		})
	}
}

func TestRunInference_DeterministicUnderConcurrency(t *testing.T) {
	f := shippedFacade(t, Options{})
	in := []float64{-2.3, 1.5, -1.8, 3.2, -0.5, 2000.0}
	want, err := f.RunInference(context.Background(), in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.RunInference(context.Background(), in)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

type recordingObserver struct {
	mu       sync.Mutex
	results  []PredictionResult
	failures []error
}

func (r *recordingObserver) ObservePrediction(result PredictionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recordingObserver) ObserveFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func TestRunInference_Observer(t *testing.T) {
	f := newFacade(t, &fakeModel{probs: ml.ProbabilityPair{NotFraud: 1}}, Options{})
	obs := &recordingObserver{}
	f.SetObserver(obs)

	_, _ = f.RunInference(context.Background(), make([]float64, ml.FeatureCount))
	_, _ = f.RunInference(context.Background(), []float64{1})

	assert.Len(t, obs.results, 1)
	require.Len(t, obs.failures, 1)
	assert.ErrorIs(t, obs.failures[0], ErrInvalidInput)
}

func TestNew_RejectsNilModel(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	assert.Error(t, err)
}
