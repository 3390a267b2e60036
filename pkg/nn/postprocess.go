package nn

import (
	"fmt"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// DecodeDetections parses raw model output into RawDetections.
// The expected layout is rows of [x1, y1, x2, y2, confidence, class], the
// common export shape for detection models. dims is the output tensor shape;
// the trailing dimension must be >= 6.
//
// Models emit box coordinates either normalized to [0,1] or in model-input
// pixel space. We detect pixel space by any coordinate exceeding 1.5 and
// divide by the model input size, so the result is always normalized.
func DecodeDetections(output []float32, dims []int, inputWidth, inputHeight int) ([]RawDetection, error) {
	if len(dims) < 2 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	stride := dims[len(dims)-1]
	if stride < 6 {
		return nil, fmt.Errorf("output row has %v values, need at least 6", stride)
	}
	nRows := len(output) / stride

	pixelSpace := false
	for i := 0; i < nRows; i++ {
		row := output[i*stride:]
		for j := 0; j < 4; j++ {
			if row[j] > 1.5 {
				pixelSpace = true
			}
		}
	}
	scaleX, scaleY := float32(1), float32(1)
	if pixelSpace {
		scaleX = 1 / float32(inputWidth)
		scaleY = 1 / float32(inputHeight)
	}

	dets := make([]RawDetection, 0, nRows)
	for i := 0; i < nRows; i++ {
		row := output[i*stride:]
		dets = append(dets, RawDetection{
			Class:      int(row[5]),
			Confidence: row[4],
			Box: Box{
				X1: row[0] * scaleX,
				Y1: row[1] * scaleY,
				X2: row[2] * scaleX,
				Y2: row[3] * scaleY,
			},
		})
	}
	return dets, nil
}

// PostProcess filters raw detections by confidence, clips boxes to the unit
// square, and (when the model has no built-in NMS) runs a greedy NMS pass.
// Output preserves input order, capped at maxDetections.
func PostProcess(dets []RawDetection, params DetectionParams, maxDetections int) []RawDetection {
	kept := make([]RawDetection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < params.ConfidenceThreshold {
			continue
		}
		if d.Class < 0 {
			continue
		}
		d.Box = d.Box.Clip()
		kept = append(kept, d)
	}
	if !params.BuiltinNMS && params.NmsIouThreshold > 0 {
		kept = greedyNMS(kept, params.NmsIouThreshold)
	}
	if len(kept) > maxDetections {
		kept = kept[:maxDetections]
	}
	return kept
}

// greedyNMS suppresses boxes of the same class whose IoU with a
// higher-confidence box is minIoU or more. A spatial index avoids the
// O(N^2) pair scan. Returned detections keep their input order.
func greedyNMS(input []RawDetection, minIoU float32) []RawDetection {
	if len(input) <= 1 {
		return input
	}

	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(len(input))
	for _, d := range input {
		fb.Add(d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
	}
	fb.Finish()

	// Visit detections in descending confidence; ties resolve to input order
	// so results are deterministic.
	order := make([]int, len(input))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return input[order[a]].Confidence > input[order[b]].Confidence
	})

	suppressed := make([]bool, len(input))
	overlapping := []int{}
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		d := input[i]
		overlapping = fb.SearchFast(d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2, overlapping)
		for _, j := range overlapping {
			if j == i || suppressed[j] {
				continue
			}
			if input[j].Class != d.Class {
				continue
			}
			if input[j].Confidence > d.Confidence {
				continue
			}
			if d.Box.IOU(input[j].Box) >= minIoU {
				suppressed[j] = true
			}
		}
	}

	retain := make([]RawDetection, 0, len(input))
	for i, d := range input {
		if !suppressed[i] {
			retain = append(retain, d)
		}
	}
	return retain
}
