package nnruntime

// Package nnruntime owns the loaded model: one-time weight loading onto the
// selected device, and a thread-compatible inference call. Callers serialize
// the forward pass under their own mutex; everything else here is read-only
// after Load.

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/logs"
	"github.com/vasedge/modelhost/pkg/modeldesc"
)

// ErrAcceleratorRequired means the descriptor demands a GPU and the host has
// none. This is startup-fatal; the container must refuse to start.
var ErrAcceleratorRequired = errors.New("model requires an accelerator, but none is present")

type Device int

const (
	DeviceCPU Device = iota
	DeviceCUDA
)

func (d Device) String() string {
	if d == DeviceCUDA {
		return "cuda"
	}
	return "cpu"
}

// Runtime is the single capability the inference handler depends on: given a
// prepared input tensor, produce raw outputs. Implementations are selected
// once at startup from the descriptor's model_type tag.
type Runtime interface {
	// Infer runs the forward pass on a batch-of-one NCHW float32 tensor and
	// returns the raw output values plus their shape. Not safe for parallel
	// calls; the caller holds the inference mutex.
	Infer(input []float32) ([]float32, []int, error)

	// Device the weights are resident on.
	Device() Device

	// Close releases device-resident memory. Call exactly once, at shutdown.
	Close()
}

// SelectDevice applies the startup device rule: accelerator when present,
// CPU otherwise, fatal when the descriptor requires an accelerator that the
// host lacks. The decision is made once; device absence is never treated as
// recoverable at runtime.
func SelectDevice(log logs.Log, res modeldesc.Resources, acceleratorPresent bool) (Device, error) {
	if acceleratorPresent {
		return DeviceCUDA, nil
	}
	if res.GPURequired {
		return DeviceCPU, ErrAcceleratorRequired
	}
	if res.CPUFallbackAllowed {
		log.Warnf("No accelerator present, falling back to CPU. Inference will be slower.")
	}
	return DeviceCPU, nil
}

// Load loads the model weights named by the descriptor onto the device.
// Called exactly once per process lifetime.
func Load(log logs.Log, desc *modeldesc.Descriptor, device Device) (Runtime, error) {
	log.Infof("Loading model %v (%v) from %v onto %v", desc.ModelID, desc.ModelType, desc.WeightsPath, device)
	switch desc.ModelType {
	case modeldesc.ModelTypeONNX:
		return loadONNX(desc, device)
	case modeldesc.ModelTypePyTorch:
		return loadTorch(desc, device)
	}
	return nil, fmt.Errorf("unsupported model_type '%v'", desc.ModelType)
}
