package ml

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards the process-wide ONNX Runtime environment.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXClassifier runs an exported binary classifier with a [1,6] float input,
// an int64 label output and a [1,2] float probability output.
type ONNXClassifier struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	labelName   string
	probName    string
	outputOrder []string
}

func newONNXClassifier(modelPath, libPath string) (*ONNXClassifier, error) {
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("onnx: input %q must be float32", in.Name)
	}
	if dims := in.Dimensions; len(dims) != 2 || (dims[1] != FeatureCount && dims[1] > 0) {
		return nil, fmt.Errorf("onnx: input %q has shape %v, want [N,%d]", in.Name, dims, FeatureCount)
	}

	c := &ONNXClassifier{inputName: in.Name}
	for _, out := range outputs {
		if out.OrtValueType != ort.ONNXTypeTensor {
			continue
		}
		switch out.DataType {
		case ort.TensorElementDataTypeInt64:
			if c.labelName == "" {
				c.labelName = out.Name
			}
		case ort.TensorElementDataTypeFloat:
			if c.probName == "" {
				c.probName = out.Name
			}
		}
	}
	if c.labelName == "" || c.probName == "" {
		return nil, errors.New("onnx: model needs an int64 label tensor and a float probability tensor (export with zipmap disabled)")
	}
	c.outputOrder = []string{c.labelName, c.probName}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{c.inputName}, c.outputOrder, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}
	c.session = session
	return c, nil
}

// CheckInput rejects values the float32 input tensor cannot hold.
func (c *ONNXClassifier) CheckInput(features FeatureVector) error {
	return features.CheckFloat32()
}

func (c *ONNXClassifier) run(features FeatureVector) (int64, ProbabilityPair, error) {
	if err := features.CheckFloat32(); err != nil {
		return 0, ProbabilityPair{}, fmt.Errorf("onnx: %w", err)
	}
	data := make([]float32, FeatureCount)
	for i, v := range features {
		data[i] = float32(v)
	}
	input, err := ort.NewTensor(ort.NewShape(1, FeatureCount), data)
	if err != nil {
		return 0, ProbabilityPair{}, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	label, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, ProbabilityPair{}, fmt.Errorf("onnx: failed to create label tensor: %w", err)
	}
	defer label.Destroy()

	probs, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		return 0, ProbabilityPair{}, fmt.Errorf("onnx: failed to create probability tensor: %w", err)
	}
	defer probs.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{label, probs}); err != nil {
		return 0, ProbabilityPair{}, fmt.Errorf("onnx: inference failed: %w", err)
	}
	p := probs.GetData()
	return label.GetData()[0], ProbabilityPair{NotFraud: float64(p[0]), Fraud: float64(p[1])}, nil
}

// Predict returns the label emitted by the graph itself.
func (c *ONNXClassifier) Predict(features FeatureVector) (Label, error) {
	label, _, err := c.run(features)
	if err != nil {
		return 0, err
	}
	return Label(label), nil
}

// PredictProbabilities returns the graph's probability row. float32 output is
// renormalized so the pair sums to 1 in float64.
func (c *ONNXClassifier) PredictProbabilities(features FeatureVector) (ProbabilityPair, error) {
	_, probs, err := c.run(features)
	if err != nil {
		return ProbabilityPair{}, err
	}
	if total := probs.NotFraud + probs.Fraud; total > 0 {
		probs.NotFraud /= total
		probs.Fraud /= total
	}
	return probs, nil
}

// Close releases the ONNX session.
func (c *ONNXClassifier) Close() error {
	return c.session.Destroy()
}
