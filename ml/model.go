package ml

import (
	"fmt"
	"math"
)

// Label is the class emitted by the classifier.
type Label int

const (
	LabelLegitimate Label = 0
	LabelFraudulent Label = 1
)

// Valid reports whether l is one of the two known classes.
func (l Label) Valid() bool {
	return l == LabelLegitimate || l == LabelFraudulent
}

func (l Label) String() string {
	switch l {
	case LabelLegitimate:
		return "legitimate"
	case LabelFraudulent:
		return "fraudulent"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// ProbabilityTolerance bounds how far NotFraud+Fraud may drift from 1.
const ProbabilityTolerance = 1e-6

// ProbabilityPair is the two-class distribution: index 0 not-fraud, index 1 fraud.
type ProbabilityPair struct {
	NotFraud float64 `json:"not_fraud"`
	Fraud    float64 `json:"fraud"`
}

// Slice returns the pair in class-index order.
func (p ProbabilityPair) Slice() []float64 {
	return []float64{p.NotFraud, p.Fraud}
}

// Validate checks that both values lie in [0,1] and sum to 1.
func (p ProbabilityPair) Validate() error {
	for _, v := range p.Slice() {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("probability %v outside [0,1]", v)
		}
	}
	sum := p.NotFraud + p.Fraud
	if math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("probabilities sum to %v, want 1", sum)
	}
	return nil
}

// Classifier is the whole surface the inference layer sees of a trained model.
// Implementations must be safe for concurrent use and side-effect free.
type Classifier interface {
	Predict(features FeatureVector) (Label, error)
	PredictProbabilities(features FeatureVector) (ProbabilityPair, error)
}

// InputChecker is implemented by backends that accept a narrower range than
// any finite float64.
type InputChecker interface {
	CheckInput(features FeatureVector) error
}
