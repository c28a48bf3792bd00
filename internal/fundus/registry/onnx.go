package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/banshee-data/fundus.report/internal/fundus"
)

// ONNXLoader loads models exported to ONNX and runs them with ONNX Runtime.
// The runtime environment is process-wide and initialised on first load.
type ONNXLoader struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string

	initOnce sync.Once
	initErr  error
}

// NewONNXLoader returns a loader using the given shared library.
func NewONNXLoader(libraryPath string) *ONNXLoader {
	return &ONNXLoader{LibraryPath: libraryPath}
}

func (l *ONNXLoader) initialize() error {
	l.initOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if l.LibraryPath != "" {
			ort.SetSharedLibraryPath(l.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			l.initErr = fmt.Errorf("initialise onnxruntime: %w", err)
		}
	})
	return l.initErr
}

// Load checks the file, compares its declared I/O against spec.Architecture
// and opens a session.
func (l *ONNXLoader) Load(ctx context.Context, spec ModelSpec) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Path == "" {
		return nil, errors.New("no weight path configured")
	}
	info, err := os.Stat(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("stat weights: %w", err)
	}
	if info.Size() == 0 {
		return nil, errors.New("weight file is empty")
	}
	if err := l.initialize(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("read model metadata (corrupt file?): %w", err)
	}
	if err := checkIO("input", spec.Architecture.Inputs, inputs); err != nil {
		return nil, err
	}
	if err := checkIO("output", spec.Architecture.Outputs, outputs); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(spec.Path,
		spec.Architecture.InputNames(), spec.Architecture.OutputNames(), nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &onnxModel{id: spec.ID, arch: spec.Architecture, session: session}, nil
}

func checkIO(kind string, declared []TensorSpec, actual []ort.InputOutputInfo) error {
	byName := make(map[string]ort.InputOutputInfo, len(actual))
	for _, a := range actual {
		byName[a.Name] = a
	}
	for _, d := range declared {
		a, ok := byName[d.Name]
		if !ok {
			return fmt.Errorf("model has no %s named %q", kind, d.Name)
		}
		if a.DataType != ort.TensorElementDataTypeFloat {
			return fmt.Errorf("%s %q has element type %v, want float32", kind, d.Name, a.DataType)
		}
		if !d.Matches(a.Dimensions) {
			return fmt.Errorf("%s %q has shape %v, architecture declares %v", kind, d.Name, []int64(a.Dimensions), d.Shape)
		}
	}
	return nil
}

type onnxModel struct {
	id      fundus.ModelID
	arch    Architecture
	session *ort.DynamicAdvancedSession
}

func (m *onnxModel) ID() fundus.ModelID { return m.id }

// Infer creates per-call tensors, so concurrent calls share only the session,
// which ONNX Runtime allows.
func (m *onnxModel) Infer(ctx context.Context, inputs ...*fundus.Tensor) ([]*fundus.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputs) != len(m.arch.Inputs) {
		return nil, fmt.Errorf("%s: got %d inputs, want %d", m.id, len(inputs), len(m.arch.Inputs))
	}

	in := make([]ort.Value, 0, len(inputs))
	defer func() {
		for _, v := range in {
			v.Destroy()
		}
	}()
	for i, t := range inputs {
		tensor, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: input %s: %w", m.id, m.arch.Inputs[i].Name, err)
		}
		in = append(in, tensor)
	}

	out := make([]ort.Value, len(m.arch.Outputs))
	defer func() {
		for _, v := range out {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	if err := m.session.Run(in, out); err != nil {
		return nil, fmt.Errorf("%s: run: %w", m.id, err)
	}

	results := make([]*fundus.Tensor, len(out))
	for i, v := range out {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("%s: output %s is %T, want float32 tensor", m.id, m.arch.Outputs[i].Name, v)
		}
		src := t.GetData()
		data := make([]float32, len(src))
		copy(data, src)
		results[i] = &fundus.Tensor{Shape: append([]int64(nil), t.GetShape()...), Data: data}
	}
	return results, nil
}

func (m *onnxModel) Close() error {
	return m.session.Destroy()
}
