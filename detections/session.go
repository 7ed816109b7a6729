package detections

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime sets up the ONNX Runtime environment. Call once at startup.
// libraryPath overrides the shared-library location; empty keeps the
// platform default.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = defaultLibraryPath()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

// ShutdownRuntime tears down the ONNX Runtime environment.
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}
	runtimeInitialized = false
	return nil
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/opt/homebrew/lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "/usr/lib/libonnxruntime.so"
	}
}

// SessionConfig is the tuning surface passed through to the backend.
type SessionConfig struct {
	IntraOpThreads int  // parallelism within a single op; 0 = number of cores
	InterOpThreads int  // parallelism across independent ops; 0 = half the cores
	MemArena       bool // reuse the CPU memory arena between runs
	MemPattern     bool // precompute the allocation pattern for the fixed shape
}

// DefaultSessionConfig maps the available core count onto backend thread
// pools, mirroring a small CPU instance deployment.
func DefaultSessionConfig() SessionConfig {
	cores := runtime.NumCPU()
	return SessionConfig{
		IntraOpThreads: cores,
		InterOpThreads: max(1, cores/2),
		MemArena:       true,
		MemPattern:     true,
	}
}

// backendSession wraps one ONNX Runtime session handle. The handle is shared
// read-only across workers; concurrent Run calls are safe by the backend's
// own guarantees.
type backendSession struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputSize  int
}

// openSession loads the weights artifact, introspects its input, and creates
// a dynamic session so each request carries its own tensors.
func openSession(weightsPath string, cfg SessionConfig) (*backendSession, error) {
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, fmt.Errorf("model weights not found at %q: %w", weightsPath, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs, want at least 1 of each", len(inputs), len(outputs))
	}

	inputName := inputs[0].Name
	outputName := outputs[0].Name

	// A static NCHW input declares its size in the last dimension.
	inputSize := 0
	if dims := inputs[0].Dimensions; len(dims) > 0 {
		if last := dims[len(dims)-1]; last > 0 {
			inputSize = int(last)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return nil, fmt.Errorf("set inter-op threads: %w", err)
		}
	}
	if err := options.SetCpuMemArena(cfg.MemArena); err != nil {
		return nil, fmt.Errorf("set cpu mem arena: %w", err)
	}
	if err := options.SetMemPattern(cfg.MemPattern); err != nil {
		return nil, fmt.Errorf("set mem pattern: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		weightsPath,
		[]string{inputName},
		[]string{outputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &backendSession{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
		inputSize:  inputSize,
	}, nil
}

// run executes one inference over a request-owned input tensor. The returned
// output tensor is allocated by the backend and must be destroyed by the
// caller.
func (s *backendSession) run(input *ort.Tensor[float32]) (*ort.Tensor[float32], error) {
	outputs := make([]ort.Value, 1)
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		outputs[0].Destroy()
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	return out, nil
}

func (s *backendSession) destroy() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}
