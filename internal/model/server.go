package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// metadataKey is the ONNX custom metadata entry holding the Metadata json.
const metadataKey = "classifier"

// ONNXOptions configures LoadONNX.
type ONNXOptions struct {
	// MetadataPath is a sidecar json used when the model carries no embedded metadata.
	MetadataPath string
	// RuntimeLibrary overrides the onnxruntime shared library location.
	RuntimeLibrary string
}

// Server runs an ONNX image classifier. Input and output tensors are bound
// to the session once, so Run calls are serialized.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadONNX deserializes the model at modelPath.
func LoadONNX(modelPath string, opts ONNXOptions) (*Server, error) {
	if opts.RuntimeLibrary != "" {
		ort.SetSharedLibraryPath(opts.RuntimeLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("model input %q and output %q must be float32", in.Name, out.Name)
	}

	metadata, err := readMetadata(modelPath, opts.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := resolveShapes(&metadata, in.Dimensions, out.Dimensions); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func readMetadata(modelPath, sidecarPath string) (Metadata, error) {
	var metadata Metadata

	embedded, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return metadata, fmt.Errorf("failed to read model metadata: %w", err)
	}
	raw, ok, err := embedded.LookupCustomMetadataMap(metadataKey)
	embedded.Destroy()
	if err != nil {
		return metadata, fmt.Errorf("failed to read %q metadata: %w", metadataKey, err)
	}

	if !ok {
		if sidecarPath == "" {
			return metadata, fmt.Errorf("model has no %q metadata and no metadata file is configured", metadataKey)
		}
		metaFile, err := os.ReadFile(sidecarPath)
		if err != nil {
			return metadata, fmt.Errorf("failed to read metadata: %w", err)
		}
		raw = string(metaFile)
	}

	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(metadata.Classes) == 0 {
		return metadata, fmt.Errorf("metadata lists no classes")
	}
	if metadata.Mean == nil {
		metadata.Mean = defaultMean
	}
	if metadata.Std == nil {
		metadata.Std = defaultStd
	}
	if len(metadata.Mean) != 3 || len(metadata.Std) != 3 {
		return metadata, fmt.Errorf("mean and std need 3 values, got %d and %d", len(metadata.Mean), len(metadata.Std))
	}
	return metadata, nil
}

// resolveShapes fixes dynamic dimensions of an NCHW input and an [N, classes]
// output and checks them against the metadata.
func resolveShapes(metadata *Metadata, in, out ort.Shape) error {
	if len(in) != 4 {
		return fmt.Errorf("expected NCHW input, got shape %v", in)
	}
	inputShape := []int64{1, 3, in[2], in[3]}
	if in[1] > 0 && in[1] != 3 {
		return fmt.Errorf("expected 3 input channels, got %d", in[1])
	}
	if metadata.ImageSize <= 0 {
		metadata.ImageSize = int(max(in[2], in[3]))
	}
	if metadata.ImageSize <= 0 {
		return fmt.Errorf("input shape %v is dynamic and metadata sets no image_size", in)
	}
	size := int64(metadata.ImageSize)
	for i := 2; i < 4; i++ {
		if inputShape[i] <= 0 {
			inputShape[i] = size
		}
		if inputShape[i] != size {
			return fmt.Errorf("input shape %v does not match image_size %d", in, size)
		}
	}

	classes := int64(len(metadata.Classes))
	outputShape := make([]int64, len(out))
	total := int64(1)
	for i, d := range out {
		switch {
		case d > 0:
			outputShape[i] = d
		case i == len(out)-1:
			outputShape[i] = classes
		default:
			outputShape[i] = 1
		}
		total *= outputShape[i]
	}
	if len(out) == 0 || total != classes {
		return fmt.Errorf("output shape %v does not match %d classes", out, classes)
	}

	metadata.InputShape = inputShape
	metadata.OutputShape = outputShape
	return nil
}

// Metadata returns the label vocabulary and preprocessing settings.
func (s *Server) Metadata() Metadata {
	return s.metadata
}

// Run executes one forward pass over a preprocessed CHW tensor.
func (s *Server) Run(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("%w: expected %d input values, got %d", ErrInference, len(data), len(input))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	outputData := s.outputTensor.GetData()
	result := make([]float32, len(outputData))
	copy(result, outputData)
	return result, nil
}

// Close releases the session, its tensors and the runtime environment.
func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
