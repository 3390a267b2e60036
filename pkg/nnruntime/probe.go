package nnruntime

import (
	"os"

	"gocv.io/x/gocv/cuda"
)

// HaveAccelerator reports whether a CUDA-capable device is present.
// Decided once at startup; never re-probed at request time.
func HaveAccelerator() bool {
	if cuda.GetCudaEnabledDeviceCount() > 0 {
		return true
	}
	// OpenCV may be built without CUDA support even on a GPU host, so also
	// look for the driver's device node.
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	return false
}
