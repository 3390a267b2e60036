package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func row(x1, y1, x2, y2, conf float32, class int) []float32 {
	return []float32{x1, y1, x2, y2, conf, float32(class)}
}

func flatten(rows ...[]float32) []float32 {
	out := []float32{}
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func TestDecodeDetectionsNormalized(t *testing.T) {
	output := flatten(
		row(0.1, 0.2, 0.3, 0.4, 0.9, 0),
		row(0.5, 0.5, 0.9, 0.9, 0.4, 2),
	)
	dets, err := DecodeDetections(output, []int{1, 2, 6}, 640, 640)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.Equal(t, 0, dets[0].Class)
	require.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	require.InDelta(t, 0.1, dets[0].Box.X1, 1e-6)
	require.InDelta(t, 0.4, dets[0].Box.Y2, 1e-6)
}

func TestDecodeDetectionsPixelSpace(t *testing.T) {
	// Coordinates in model-input pixels get normalized by the input size
	output := flatten(row(64, 128, 320, 256, 0.8, 1))
	dets, err := DecodeDetections(output, []int{1, 1, 6}, 640, 512)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.InDelta(t, 0.1, dets[0].Box.X1, 1e-6)
	require.InDelta(t, 0.25, dets[0].Box.Y1, 1e-6)
	require.InDelta(t, 0.5, dets[0].Box.X2, 1e-6)
	require.InDelta(t, 0.5, dets[0].Box.Y2, 1e-6)
}

func TestDecodeDetectionsBadShape(t *testing.T) {
	_, err := DecodeDetections([]float32{1, 2, 3}, []int{3}, 640, 640)
	require.Error(t, err)
	_, err = DecodeDetections([]float32{1, 2, 3, 4}, []int{1, 4}, 640, 640)
	require.Error(t, err)
}

func TestPostProcessThresholdBoundaries(t *testing.T) {
	dets := []RawDetection{
		{Class: 0, Confidence: 0, Box: Box{0.1, 0.1, 0.2, 0.2}},
		{Class: 1, Confidence: 0.5, Box: Box{0.3, 0.3, 0.4, 0.4}},
		{Class: 2, Confidence: 1, Box: Box{0.5, 0.5, 0.6, 0.6}},
	}

	// Threshold 0 preserves everything
	kept := PostProcess(dets, DetectionParams{ConfidenceThreshold: 0}, 1000)
	require.Len(t, kept, 3)

	// Threshold 1 allows only perfect scores
	kept = PostProcess(dets, DetectionParams{ConfidenceThreshold: 1}, 1000)
	require.Len(t, kept, 1)
	require.Equal(t, 2, kept[0].Class)
}

func TestPostProcessClipsAndPreservesOrder(t *testing.T) {
	dets := []RawDetection{
		{Class: 3, Confidence: 0.6, Box: Box{-0.2, 0.1, 0.4, 1.3}},
		{Class: 1, Confidence: 0.9, Box: Box{0.5, 0.5, 0.7, 0.7}},
	}
	kept := PostProcess(dets, DetectionParams{ConfidenceThreshold: 0.5, BuiltinNMS: true}, 1000)
	require.Len(t, kept, 2)
	// Input order preserved even though confidences are not sorted
	require.Equal(t, 3, kept[0].Class)
	require.Equal(t, 1, kept[1].Class)
	// Clipped to the unit square
	require.InDelta(t, 0, kept[0].Box.X1, 1e-6)
	require.InDelta(t, 1, kept[0].Box.Y2, 1e-6)
}

func TestPostProcessNMS(t *testing.T) {
	// Two near-identical boxes of the same class; the weaker one goes
	dets := []RawDetection{
		{Class: 0, Confidence: 0.9, Box: Box{0.1, 0.1, 0.5, 0.5}},
		{Class: 0, Confidence: 0.6, Box: Box{0.12, 0.1, 0.5, 0.5}},
		{Class: 7, Confidence: 0.6, Box: Box{0.1, 0.1, 0.5, 0.5}}, // different class survives
		{Class: 0, Confidence: 0.8, Box: Box{0.7, 0.7, 0.9, 0.9}}, // disjoint survives
	}
	kept := PostProcess(dets, DetectionParams{ConfidenceThreshold: 0.5, NmsIouThreshold: 0.45}, 1000)
	require.Len(t, kept, 3)
	require.Equal(t, []int{0, 7, 0}, []int{kept[0].Class, kept[1].Class, kept[2].Class})
	require.InDelta(t, 0.9, kept[0].Confidence, 1e-6)

	// Built-in NMS disables the pass entirely
	kept = PostProcess(dets, DetectionParams{ConfidenceThreshold: 0.5, NmsIouThreshold: 0.45, BuiltinNMS: true}, 1000)
	require.Len(t, kept, 4)
}

func TestPostProcessCap(t *testing.T) {
	dets := make([]RawDetection, 50)
	for i := range dets {
		dets[i] = RawDetection{Class: i, Confidence: 0.9, Box: Box{0, 0, 0.1, 0.1}}
	}
	kept := PostProcess(dets, DetectionParams{ConfidenceThreshold: 0, BuiltinNMS: true}, 10)
	require.Len(t, kept, 10)
}
