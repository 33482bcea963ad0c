package ml

import (
	"fmt"
	"math"
)

// FeatureCount is the fixed arity of every vector the classifier accepts.
const FeatureCount = 6

// AmountIndex is the position of the transaction amount in a FeatureVector.
const AmountIndex = 5

// FeatureVector holds [V1, V2, V3, V4, V5, Amount] in training order.
type FeatureVector [FeatureCount]float64

// TransactionFeatures is the named form of a FeatureVector. Unset fields are 0.
type TransactionFeatures struct {
	V1     float64 `json:"v1"`
	V2     float64 `json:"v2"`
	V3     float64 `json:"v3"`
	V4     float64 `json:"v4"`
	V5     float64 `json:"v5"`
	Amount float64 `json:"amount"`
}

// FeatureNames returns the column names in vector order.
func FeatureNames() []string {
	return []string{"V1", "V2", "V3", "V4", "V5", "Amount"}
}

// Vector flattens the named fields into model order.
func (f TransactionFeatures) Vector() FeatureVector {
	return FeatureVector{f.V1, f.V2, f.V3, f.V4, f.V5, f.Amount}
}

// Features converts a vector back to its named form.
func (v FeatureVector) Features() TransactionFeatures {
	return TransactionFeatures{
		V1:     v[0],
		V2:     v[1],
		V3:     v[2],
		V4:     v[3],
		V5:     v[4],
		Amount: v[AmountIndex],
	}
}

// Amount returns the transaction amount.
func (v FeatureVector) Amount() float64 {
	return v[AmountIndex]
}

// Validate reports the first non-finite value.
func (v FeatureVector) Validate() error {
	names := FeatureNames()
	for i, value := range v {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("feature %s is not a finite number: %v", names[i], value)
		}
	}
	return nil
}

// CheckFloat32 reports the first value that would overflow float32.
func (v FeatureVector) CheckFloat32() error {
	names := FeatureNames()
	for i, value := range v {
		if math.Abs(value) > math.MaxFloat32 {
			return fmt.Errorf("feature %s is out of range for float32: %v", names[i], value)
		}
	}
	return nil
}

// VectorFromSlice copies exactly FeatureCount values into a FeatureVector.
func VectorFromSlice(values []float64) (FeatureVector, error) {
	var v FeatureVector
	if len(values) != FeatureCount {
		return v, fmt.Errorf("expected %d features, got %d", FeatureCount, len(values))
	}
	copy(v[:], values)
	return v, nil
}
