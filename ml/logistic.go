package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// LogisticRegression is a standardized linear model with its own decision
// threshold, the usual shape of an exported fraud scorer.
type LogisticRegression struct {
	FeatureNames []string     `json:"feature_names"`
	Scaler       *ScalerState `json:"scaler,omitempty"`
	Coefficients []float64    `json:"coefficients"`
	Intercept    float64      `json:"intercept"`
	// Threshold is the fraud score a sample must exceed. Nil means 0.5.
	Threshold *float64 `json:"threshold,omitempty"`
}

const defaultThreshold = 0.5

// ScalerState mirrors a fitted standard scaler: (x - mean) / scale.
type ScalerState struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func decodeLogisticRegression(payload []byte) (*LogisticRegression, error) {
	var model LogisticRegression
	if err := json.Unmarshal(payload, &model); err != nil {
		return nil, fmt.Errorf("decode logistic regression: %w", err)
	}
	if err := model.validate(); err != nil {
		return nil, err
	}
	if model.Threshold == nil {
		t := defaultThreshold
		model.Threshold = &t
	}
	return &model, nil
}

func (m *LogisticRegression) validate() error {
	if err := checkFeatureNames(m.FeatureNames); err != nil {
		return err
	}
	if len(m.Coefficients) != FeatureCount {
		return fmt.Errorf("expected %d coefficients, got %d", FeatureCount, len(m.Coefficients))
	}
	if t := m.Threshold; t != nil && (math.IsNaN(*t) || *t < 0 || *t >= 1) {
		return fmt.Errorf("threshold %v outside [0,1)", *t)
	}
	if m.Scaler != nil {
		if len(m.Scaler.Mean) != FeatureCount || len(m.Scaler.Scale) != FeatureCount {
			return errors.New("scaler must have one mean and scale per feature")
		}
		for _, s := range m.Scaler.Scale {
			if s == 0 {
				return errors.New("scaler has zero scale")
			}
		}
	}
	return nil
}

func (m *LogisticRegression) score(features FeatureVector) float64 {
	z := m.Intercept
	for i, x := range features {
		if m.Scaler != nil {
			x = (x - m.Scaler.Mean[i]) / m.Scaler.Scale[i]
		}
		z += m.Coefficients[i] * x
	}
	return sigmoid(z)
}

// Predict applies the artifact's decision threshold to the fraud score. A
// score equal to the threshold is legitimate, so the default matches a
// positive decision function.
func (m *LogisticRegression) Predict(features FeatureVector) (Label, error) {
	if m.score(features) > *m.Threshold {
		return LabelFraudulent, nil
	}
	return LabelLegitimate, nil
}

// PredictProbabilities returns [1-p, p] for the fraud score p.
func (m *LogisticRegression) PredictProbabilities(features FeatureVector) (ProbabilityPair, error) {
	p := m.score(features)
	return ProbabilityPair{NotFraud: 1 - p, Fraud: p}, nil
}

// sigmoid is split by sign to avoid overflow on large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
