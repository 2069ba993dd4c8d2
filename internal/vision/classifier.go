package vision

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrInference marks failures raised while running the model.
	ErrInference = errors.New("model inference")
	// ErrIncompatibleModel is returned at load time when the artifact does not
	// take a [1, size, size, 3] input.
	ErrIncompatibleModel = errors.New("incompatible model")
)

// Model is the black-box classifier: a tensor in, a score vector out.
type Model interface {
	Run(input Tensor) ([]float32, error)
}

// ONNXModel runs a single-input, single-output ONNX graph. It is built once
// at startup and shared by all requests.
type ONNXModel struct {
	mu sync.Mutex

	inputShape ort.Shape

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// LoadONNXModel initializes the ONNX Runtime environment and binds a session
// for the model at modelPath. libPath may be empty to use the default shared
// library lookup.
func LoadONNXModel(modelPath, libPath string, size int) (*ONNXModel, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx init environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: expected 1 input and at least 1 output, got %d and %d",
			ErrIncompatibleModel, len(inputs), len(outputs))
	}

	inputShape, err := resolveInputShape(inputs[0].Dimensions, size)
	if err != nil {
		return nil, err
	}
	outputShape := resolveDynamic(outputs[0].Dimensions)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("onnx new input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		outputTensor.Destroy()
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnx new session: %w", err)
	}

	return &ONNXModel{
		inputShape: inputShape,
		session:    session,
		input:      inputTensor,
		output:     outputTensor,
	}, nil
}

// resolveInputShape accepts [N, size, size, 3] where N is 1 or dynamic.
func resolveInputShape(dims ort.Shape, size int) (ort.Shape, error) {
	want := ort.NewShape(1, int64(size), int64(size), 3)
	if len(dims) != len(want) {
		return nil, fmt.Errorf("%w: input shape %v, want %v", ErrIncompatibleModel, dims, want)
	}
	for i, d := range dims {
		if d < 0 {
			continue
		}
		if d != want[i] {
			return nil, fmt.Errorf("%w: input shape %v, want %v", ErrIncompatibleModel, dims, want)
		}
	}
	return want, nil
}

func resolveDynamic(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d < 1 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// InputShape returns the bound input shape.
func (m *ONNXModel) InputShape() []int64 {
	return append([]int64(nil), m.inputShape...)
}

// Run copies input into the bound tensor, runs the session and returns a copy
// of the output. Calls are serialized because the bound buffers are shared.
func (m *ONNXModel) Run(input Tensor) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inData := m.input.GetData()
	if len(inData) != len(input.Data) {
		return nil, fmt.Errorf("%w: input tensor size %d, got %d", ErrInference, len(inData), len(input.Data))
	}
	copy(inData, input.Data)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", ErrInference, err)
	}
	return append([]float32(nil), m.output.GetData()...), nil
}

func (m *ONNXModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	_ = ort.DestroyEnvironment()
}
