package model

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hailam/chessnet/internal/features"
)

// EnvLibraryPath names the environment variable consulted for the
// onnxruntime shared library when no explicit path is configured.
const EnvLibraryPath = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var ortInit sync.Mutex

// ONNXModel runs an ONNX model with one input of shape (batch, 773) and one
// output of shape (batch, 1).
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	outputDims ort.Shape
}

// LoadONNX opens an ONNX model. The onnxruntime environment is initialised
// on first use and shared by every model in the process.
func LoadONNX(path, libPath string) (*ONNXModel, error) {
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	if dims := inputs[0].Dimensions; len(dims) != 2 || dims[1] != features.Size {
		return nil, fmt.Errorf("input %q has shape %v, expected (batch, %d)", inputs[0].Name, dims, features.Size)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXModel{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		outputDims: outputs[0].Dimensions,
	}, nil
}

func initEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = os.Getenv(EnvLibraryPath)
	}
	if libPath == "" {
		libPath = defaultLibraryName()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialise onnxruntime from %s: %w", libPath, err)
	}
	return nil
}

func defaultLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Predict implements Model.
func (m *ONNXModel) Predict(batch []features.Vector) ([]float32, error) {
	n := int64(len(batch))
	if n == 0 {
		return nil, nil
	}

	data := make([]float32, 0, len(batch)*features.Size)
	for i := range batch {
		data = append(data, batch[i][:]...)
	}

	input, err := ort.NewTensor(ort.NewShape(n, features.Size), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](m.batchOutputShape(n))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := m.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	raw := output.GetData()
	if int64(len(raw)) != n {
		return nil, fmt.Errorf("model %q returned %d values for %d samples", m.outputName, len(raw), n)
	}
	out := make([]float32, n)
	copy(out, raw)
	return out, nil
}

// batchOutputShape substitutes the dynamic batch dimension of the model's
// declared output shape.
func (m *ONNXModel) batchOutputShape(n int64) ort.Shape {
	if len(m.outputDims) == 0 {
		return ort.NewShape(n, 1)
	}
	dims := make([]int64, len(m.outputDims))
	for i, d := range m.outputDims {
		if d < 0 || i == 0 {
			d = n
		}
		dims[i] = d
	}
	return ort.NewShape(dims...)
}

// Close releases the session. The shared environment stays initialised.
func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
