package ml

import (
	"math"
	"testing"
)

func TestFeatureVectorRoundTrip(t *testing.T) {
	f := TransactionFeatures{V1: -2.3, V2: 1.5, V3: -1.8, V4: 3.2, V5: -0.5, Amount: 2000}
	v := f.Vector()
	if v != (FeatureVector{-2.3, 1.5, -1.8, 3.2, -0.5, 2000}) {
		t.Fatalf("unexpected order: %v", v)
	}
	if v.Features() != f {
		t.Fatalf("round trip mismatch: %+v", v.Features())
	}
	if v.Amount() != 2000 {
		t.Fatalf("unexpected amount %v", v.Amount())
	}
}

func TestVectorFromSlice(t *testing.T) {
	if _, err := VectorFromSlice([]float64{1, 2, 3}); err == nil {
		t.Fatal("expected arity error")
	}
	if _, err := VectorFromSlice(make([]float64, 7)); err == nil {
		t.Fatal("expected arity error")
	}
	v, err := VectorFromSlice([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v[5] != 6 {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestFeatureVectorValidate(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		v := FeatureVector{0, 0, bad, 0, 0, 0}
		if err := v.Validate(); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
	if err := (FeatureVector{-1e9, 0, 0, 0, 0, 1e12}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProbabilityPairValidate(t *testing.T) {
	if err := (ProbabilityPair{NotFraud: 0.25, Fraud: 0.75}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []ProbabilityPair{
		{NotFraud: 0.5, Fraud: 0.6},
		{NotFraud: -0.1, Fraud: 1.1},
		{NotFraud: math.NaN(), Fraud: 1},
	}
	for _, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("expected error for %+v", p)
		}
	}
}
