package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecisionTree is a flattened binary tree. Node 0 is the root.
type DecisionTree struct {
	FeatureNames []string   `json:"feature_names"`
	Nodes        []TreeNode `json:"nodes"`
}

// TreeNode is one split or leaf. Leaves carry their own class label and the
// per-class weights seen during training; the two are not required to agree.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	Value      []float64 `json:"value,omitempty"`
	IsLeaf     bool      `json:"is_leaf"`
}

func decodeDecisionTree(payload []byte) (*DecisionTree, error) {
	var dt DecisionTree
	if err := json.Unmarshal(payload, &dt); err != nil {
		return nil, fmt.Errorf("decode decision tree: %w", err)
	}
	if err := dt.validate(); err != nil {
		return nil, err
	}
	return &dt, nil
}

func (dt *DecisionTree) validate() error {
	if err := checkFeatureNames(dt.FeatureNames); err != nil {
		return err
	}
	if len(dt.Nodes) == 0 {
		return errors.New("model not trained")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if !Label(node.ClassLabel).Valid() {
				return fmt.Errorf("leaf %d has class label %d", i, node.ClassLabel)
			}
			if _, err := leafDistribution(node); err != nil {
				return fmt.Errorf("leaf %d: %w", i, err)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= FeatureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		// Children must point forward, which also rules out cycles.
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return fmt.Errorf("node %d: invalid child %d", i, child)
			}
		}
	}
	return nil
}

func (dt *DecisionTree) leaf(features FeatureVector) TreeNode {
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

// Predict returns the label stored on the reached leaf.
func (dt *DecisionTree) Predict(features FeatureVector) (Label, error) {
	return Label(dt.leaf(features).ClassLabel), nil
}

// PredictProbabilities returns the normalized class weights of the reached leaf.
func (dt *DecisionTree) PredictProbabilities(features FeatureVector) (ProbabilityPair, error) {
	return leafDistribution(dt.leaf(features))
}

func leafDistribution(node TreeNode) (ProbabilityPair, error) {
	if len(node.Value) == 0 {
		// Pure leaf without recorded weights.
		if Label(node.ClassLabel) == LabelFraudulent {
			return ProbabilityPair{Fraud: 1}, nil
		}
		return ProbabilityPair{NotFraud: 1}, nil
	}
	if len(node.Value) != 2 {
		return ProbabilityPair{}, fmt.Errorf("expected 2 class weights, got %d", len(node.Value))
	}
	total := node.Value[0] + node.Value[1]
	if node.Value[0] < 0 || node.Value[1] < 0 || total <= 0 {
		return ProbabilityPair{}, errors.New("class weights must be non-negative with a positive sum")
	}
	pair := ProbabilityPair{NotFraud: node.Value[0] / total, Fraud: node.Value[1] / total}
	if err := pair.Validate(); err != nil {
		return ProbabilityPair{}, fmt.Errorf("class weights %v: %w", node.Value, err)
	}
	return pair, nil
}
