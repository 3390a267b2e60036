package nnruntime

import (
	"fmt"

	"github.com/vasedge/modelhost/pkg/modeldesc"
	"gocv.io/x/gocv"
)

// torchRuntime runs tensor-framework models through the OpenCV DNN module.
type torchRuntime struct {
	net        gocv.Net
	inputDims  []int
	outputName string
	device     Device
}

func loadTorch(desc *modeldesc.Descriptor, device Device) (Runtime, error) {
	net := gocv.ReadNetFromTorch(desc.WeightsPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to read torch model from %v", desc.WeightsPath)
	}

	if device == DeviceCUDA {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			net.Close()
			return nil, fmt.Errorf("failed to select CUDA backend: %w", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			net.Close()
			return nil, fmt.Errorf("failed to select CUDA target: %w", err)
		}
	} else {
		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			net.Close()
			return nil, fmt.Errorf("failed to select CPU backend: %w", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
			net.Close()
			return nil, fmt.Errorf("failed to select CPU target: %w", err)
		}
	}

	return &torchRuntime{
		net:        net,
		inputDims:  []int{1, 3, desc.ExpectedResolution[1], desc.ExpectedResolution[0]},
		outputName: desc.SchemaString("output_name", ""),
		device:     device,
	}, nil
}

func (r *torchRuntime) Infer(input []float32) ([]float32, []int, error) {
	expected := r.inputDims[1] * r.inputDims[2] * r.inputDims[3]
	if len(input) != expected {
		return nil, nil, fmt.Errorf("input tensor has %v values, model expects %v", len(input), expected)
	}

	blob := gocv.NewMatWithSizes(r.inputDims, gocv.MatTypeCV32F)
	defer blob.Close()
	blobData, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access input blob: %w", err)
	}
	copy(blobData, input)

	r.net.SetInput(blob, "")
	out := r.net.Forward(r.outputName)
	defer out.Close()
	if out.Empty() {
		return nil, nil, fmt.Errorf("inference produced no output")
	}

	outData, err := out.DataPtrFloat32()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access output blob: %w", err)
	}
	output := make([]float32, len(outData))
	copy(output, outData)
	return output, out.Size(), nil
}

func (r *torchRuntime) Device() Device {
	return r.device
}

func (r *torchRuntime) Close() {
	r.net.Close()
}
