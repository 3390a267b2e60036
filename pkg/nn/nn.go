package nn

// Package nn is the detection interface layer: raw model outputs in, filtered
// normalized detections out. Model loading lives in pkg/nnruntime.

import (
	"bufio"
	"os"
	"strings"
)

const DefaultConfidenceThreshold = 0.5
const DefaultNmsIouThreshold = 0.45

// RawDetection is one row of decoded model output, before thresholding.
// Box coordinates are normalized to [0,1] relative to the model input.
type RawDetection struct {
	Class      int
	Confidence float32
	Box        Box
}

// DetectionParams controls post-processing of raw model output.
type DetectionParams struct {
	ConfidenceThreshold float32 // Detections below this are discarded. Zero keeps everything.
	NmsIouThreshold     float32 // Same-class overlap at or above this suppresses the weaker detection, unless BuiltinNMS. Zero disables NMS.
	BuiltinNMS          bool    // The model already performed NMS; preserve its output order.
}

func NewDetectionParams() DetectionParams {
	return DetectionParams{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NmsIouThreshold:     DefaultNmsIouThreshold,
	}
}

// Load a text file with class names on each line
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, scanner.Err()
}
