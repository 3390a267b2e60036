package nnruntime

import (
	"fmt"

	"github.com/vasedge/modelhost/pkg/modeldesc"
	ort "github.com/yalue/onnxruntime_go"
)

// onnxRuntime runs graph-execution models through ONNX Runtime.
// Input and output tensors are allocated once at load time; the session
// writes into the same output buffer on every run, which is one more reason
// the forward pass is serialized by the caller.
type onnxRuntime struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	device       Device
}

func loadONNX(desc *modeldesc.Descriptor, device Device) (Runtime, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	width := int64(desc.ExpectedResolution[0])
	height := int64(desc.ExpectedResolution[1])
	inputShape := ort.NewShape(1, 3, height, width)

	outputShape := desc.SchemaShape("output_shape")
	if outputShape == nil {
		// Detection models exported with a fixed box budget; rows below the
		// confidence threshold are dropped in post-processing.
		outputShape = []int64{1, 300, 6}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if device == DeviceCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to create CUDA provider options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to enable CUDA execution provider: %w", err)
		}
	}

	inputName := desc.SchemaString("input_name", "input")
	outputName := desc.SchemaString("output_name", "output")
	session, err := ort.NewAdvancedSession(desc.WeightsPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session for %v: %w", desc.WeightsPath, err)
	}

	return &onnxRuntime{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		device:       device,
	}, nil
}

func (r *onnxRuntime) Infer(input []float32) ([]float32, []int, error) {
	data := r.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, nil, fmt.Errorf("input tensor has %v values, model expects %v", len(input), len(data))
	}
	copy(data, input)

	if err := r.session.Run(); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}

	// Copy out so the caller never aliases the session's reusable buffer
	raw := r.outputTensor.GetData()
	output := make([]float32, len(raw))
	copy(output, raw)

	shape := r.outputTensor.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}
	return output, dims, nil
}

func (r *onnxRuntime) Device() Device {
	return r.device
}

// Close releases in LIFO order of creation.
func (r *onnxRuntime) Close() {
	if r.session != nil {
		r.session.Destroy()
	}
	if r.outputTensor != nil {
		r.outputTensor.Destroy()
	}
	if r.inputTensor != nil {
		r.inputTensor.Destroy()
	}
	ort.DestroyEnvironment()
}
