// Package inference turns raw form values into a fraud verdict.
package inference

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"fraudguard/ml"
)

var (
	// ErrInvalidInput is returned for wrong-arity or non-finite inputs. The
	// model is never called in that case.
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelUnavailable is returned for every call when the artifact failed
	// to load. It wraps the underlying load error.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidModelOutput is returned when the model breaks the label or
	// probability contract.
	ErrInvalidModelOutput = errors.New("invalid model output")
)

// Verdict is the outcome of one inference.
type Verdict int

const (
	Legitimate Verdict = iota
	Fraudulent
)

func (v Verdict) String() string {
	if v == Fraudulent {
		return "fraudulent"
	}
	return "legitimate"
}

// MarshalText lets verdicts travel as strings in JSON.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText accepts the strings produced by MarshalText.
func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "legitimate":
		*v = Legitimate
	case "fraudulent":
		*v = Fraudulent
	default:
		return fmt.Errorf("unknown verdict %q", text)
	}
	return nil
}

// PredictionResult is the facade's answer. Verdict comes from the model's own
// label; it is not derived from Probabilities.
type PredictionResult struct {
	Verdict       Verdict            `json:"verdict"`
	Label         ml.Label           `json:"label"`
	Probabilities ml.ProbabilityPair `json:"probabilities"`
	Features      ml.FeatureVector   `json:"features"`
}

// Options selects between the two historical form behaviours.
type Options struct {
	// PreserveInputsAcrossRequests keeps form values in the session after a
	// prediction instead of resetting them to zero.
	PreserveInputsAcrossRequests bool `json:"preserve_inputs_across_requests"`
	// ClampAmountNonNegative floors Amount at 0 before calling the model.
	ClampAmountNonNegative bool `json:"clamp_amount_non_negative"`
	// CacheSize bounds the result memo. Zero disables it.
	CacheSize int `json:"cache_size"`
}

// Observer is notified after every call. Implementations must not block.
type Observer interface {
	ObservePrediction(result PredictionResult)
	ObserveFailure(err error)
}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

func (obs Observers) ObservePrediction(result PredictionResult) {
	for _, o := range obs {
		o.ObservePrediction(result)
	}
}

func (obs Observers) ObserveFailure(err error) {
	for _, o := range obs {
		o.ObserveFailure(err)
	}
}

// Facade owns the loaded classifier. It is safe for concurrent use.
type Facade struct {
	model   ml.Classifier
	loadErr error
	opts    Options
	cache   *lru.Cache[ml.FeatureVector, PredictionResult]
	logger  *zap.Logger
	observe Observer
}

// New builds a facade around a successfully loaded model.
func New(model ml.Classifier, opts Options, logger *zap.Logger) (*Facade, error) {
	if model == nil {
		return nil, errors.New("inference: nil model")
	}
	f := &Facade{model: model, opts: opts, logger: orNop(logger)}
	if opts.CacheSize > 0 {
		cache, err := lru.New[ml.FeatureVector, PredictionResult](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("inference: create cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// NewUnavailable builds a facade that refuses every request because the
// artifact could not be loaded.
func NewUnavailable(loadErr error, opts Options, logger *zap.Logger) *Facade {
	if loadErr == nil {
		loadErr = errors.New("model not loaded")
	}
	return &Facade{loadErr: loadErr, opts: opts, logger: orNop(logger)}
}

// SetObserver installs a hook for metrics and live feeds.
func (f *Facade) SetObserver(o Observer) {
	f.observe = o
}

// Options returns the configured behaviour.
func (f *Facade) Options() Options {
	return f.opts
}

// Available reports whether the model loaded.
func (f *Facade) Available() bool {
	return f.model != nil
}

// LoadError returns the artifact error for an unavailable facade.
func (f *Facade) LoadError() error {
	return f.loadErr
}

// RunInference validates fields ([V1..V5, Amount]), calls the model and maps
// its answer to a PredictionResult.
func (f *Facade) RunInference(ctx context.Context, fields []float64) (PredictionResult, error) {
	result, err := f.run(ctx, fields)
	if f.observe != nil {
		if err != nil {
			f.observe.ObserveFailure(err)
		} else {
			f.observe.ObservePrediction(result)
		}
	}
	return result, err
}

// RunFeatures is RunInference for the named field form.
func (f *Facade) RunFeatures(ctx context.Context, features ml.TransactionFeatures) (PredictionResult, error) {
	v := features.Vector()
	return f.RunInference(ctx, v[:])
}

func (f *Facade) run(ctx context.Context, fields []float64) (PredictionResult, error) {
	if f.model == nil {
		return PredictionResult{}, fmt.Errorf("%w: %w", ErrModelUnavailable, f.loadErr)
	}
	if err := ctx.Err(); err != nil {
		return PredictionResult{}, err
	}

	vector, err := ml.VectorFromSlice(fields)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := vector.Validate(); err != nil {
		return PredictionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if f.opts.ClampAmountNonNegative && vector[ml.AmountIndex] < 0 {
		vector[ml.AmountIndex] = 0
	}
	if c, ok := f.model.(ml.InputChecker); ok {
		if err := c.CheckInput(vector); err != nil {
			return PredictionResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	if f.cache != nil {
		if cached, ok := f.cache.Get(vector); ok {
			return cached, nil
		}
	}

	label, err := f.model.Predict(vector)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict: %w", err)
	}
	if !label.Valid() {
		return PredictionResult{}, fmt.Errorf("%w: label %d", ErrInvalidModelOutput, int(label))
	}
	probs, err := f.model.PredictProbabilities(vector)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict probabilities: %w", err)
	}
	if err := probs.Validate(); err != nil {
		return PredictionResult{}, fmt.Errorf("%w: %v", ErrInvalidModelOutput, err)
	}

	result := PredictionResult{
		Verdict:       Legitimate,
		Label:         label,
		Probabilities: probs,
		Features:      vector,
	}
	if label == ml.LabelFraudulent {
		result.Verdict = Fraudulent
	}
	if f.cache != nil {
		f.cache.Add(vector, result)
	}

	f.logger.Debug("inference completed",
		zap.Stringer("verdict", result.Verdict),
		zap.Float64("fraud_probability", probs.Fraud),
		zap.Float64("amount", vector.Amount()),
	)
	return result, nil
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
