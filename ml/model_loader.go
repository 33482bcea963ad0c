package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Artifact kinds accepted by LoadModel.
const (
	KindLogisticRegression = "logistic_regression"
	KindDecisionTree       = "decision_tree"
	KindONNX               = "onnx"
)

// SupportedKinds lists every artifact kind LoadModel understands.
func SupportedKinds() []string {
	return []string{KindLogisticRegression, KindDecisionTree, KindONNX}
}

// ArtifactError reports a model artifact that is missing, unreadable or not a
// valid classifier for the six-feature interface.
type ArtifactError struct {
	Kind string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("model artifact %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedKind is wrapped by ArtifactError for unknown kinds.
var ErrUnsupportedKind = errors.New("unsupported model type")

// ArtifactInfo describes the artifact behind a loaded handle.
type ArtifactInfo struct {
	Kind     string    `json:"kind"`
	Path     string    `json:"path"`
	SHA256   string    `json:"sha256"`
	Size     int64     `json:"size"`
	LoadedAt time.Time `json:"loaded_at"`
}

// LoadOptions tunes backend-specific loading.
type LoadOptions struct {
	// ONNXLibraryPath points at libonnxruntime. Empty means next to the model.
	ONNXLibraryPath string
}

// ModelHandle is the immutable result of a successful load.
type ModelHandle struct {
	Classifier
	info   ArtifactInfo
	closer func() error
}

// Info returns the artifact metadata.
func (h *ModelHandle) Info() ArtifactInfo {
	return h.info
}

// CheckInput delegates to the backend when it restricts its input range.
func (h *ModelHandle) CheckInput(features FeatureVector) error {
	if c, ok := h.Classifier.(InputChecker); ok {
		return c.CheckInput(features)
	}
	return nil
}

// Close releases backend resources. Safe to call on handles without any.
func (h *ModelHandle) Close() error {
	if h == nil || h.closer == nil {
		return nil
	}
	return h.closer()
}

// LoadModel reads the artifact at path and returns a ready classifier. Every
// failure is an *ArtifactError.
func LoadModel(kind, path string, opts LoadOptions) (*ModelHandle, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	fail := func(err error) (*ModelHandle, error) {
		return nil, &ArtifactError{Kind: kind, Path: path, Err: err}
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	if len(payload) == 0 {
		return fail(errors.New("artifact is empty"))
	}
	sum := sha256.Sum256(payload)
	info := ArtifactInfo{
		Kind:     kind,
		Path:     path,
		SHA256:   hex.EncodeToString(sum[:]),
		Size:     int64(len(payload)),
		LoadedAt: time.Now().UTC(),
	}

	switch kind {
	case KindLogisticRegression:
		model, err := decodeLogisticRegression(payload)
		if err != nil {
			return fail(err)
		}
		return &ModelHandle{Classifier: model, info: info}, nil
	case KindDecisionTree:
		model, err := decodeDecisionTree(payload)
		if err != nil {
			return fail(err)
		}
		return &ModelHandle{Classifier: model, info: info}, nil
	case KindONNX:
		model, err := newONNXClassifier(path, opts.ONNXLibraryPath)
		if err != nil {
			return fail(err)
		}
		return &ModelHandle{Classifier: model, info: info, closer: model.Close}, nil
	default:
		return fail(fmt.Errorf("%w %q", ErrUnsupportedKind, kind))
	}
}

func checkFeatureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	want := FeatureNames()
	if len(names) != len(want) {
		return fmt.Errorf("artifact expects %d features, want %d", len(names), len(want))
	}
	for i := range want {
		if !strings.EqualFold(names[i], want[i]) {
			return fmt.Errorf("feature %d is %q, want %q", i, names[i], want[i])
		}
	}
	return nil
}
