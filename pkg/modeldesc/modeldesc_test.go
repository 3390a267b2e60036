package modeldesc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

const validYaml = `
model_id: yolov8n
model_name: YOLOv8 Nano
model_version: 8.0.0
supported_tasks:
  - object_detection
input_format: NV12
expected_resolution: [640, 640]
resource_requirements:
  gpu_required: false
  gpu_memory_mb: 500
  cpu_fallback_allowed: true
model_type: onnx
model_weights: weights/yolov8n.onnx
confidence_threshold: 0.5
nms_iou_threshold: 0.45
output_schema:
  type: object_detection
  format: xyxy
  builtin_nms: true
  class_names_file: coco_classes.txt
`

// writeModel creates <root>/<dir>/model.yaml plus a weights file, returning
// the model directory.
func writeModel(t *testing.T, root, dir, yaml string, withWeights bool) string {
	modelDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(modelDir, 0755))
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(modelDir, "model.yaml"), []byte(yaml), 0644))
	}
	if withWeights {
		require.NoError(t, os.MkdirAll(filepath.Join(modelDir, "weights"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(modelDir, "weights", "yolov8n.onnx"), []byte("weights"), 0644))
	}
	return modelDir
}

func TestLoadValid(t *testing.T) {
	root := t.TempDir()
	modelDir := writeModel(t, root, "yolov8n", validYaml, true)
	desc, err := Load(filepath.Join(modelDir, "model.yaml"), modelDir)
	require.NoError(t, err)
	require.Equal(t, "yolov8n", desc.ModelID)
	require.Equal(t, "YOLOv8 Nano", desc.ModelName)
	require.Equal(t, []int{640, 640}, desc.ExpectedResolution)
	require.Equal(t, ModelTypeONNX, desc.ModelType)
	require.False(t, desc.Resources.GPURequired)
	require.True(t, desc.Resources.CPUFallbackAllowed)
	require.InDelta(t, 0.5, desc.ConfidenceThreshold, 1e-9)
	require.NotNil(t, desc.NmsIouThreshold)
	require.InDelta(t, 0.45, *desc.NmsIouThreshold, 1e-9)
	require.Equal(t, filepath.Join(modelDir, "weights/yolov8n.onnx"), desc.WeightsPath)
	require.True(t, desc.SchemaBool("builtin_nms"))
	require.Equal(t, "coco_classes.txt", desc.SchemaString("class_names_file", ""))
}

func loadString(t *testing.T, yaml string) (*Descriptor, error) {
	root := t.TempDir()
	modelDir := writeModel(t, root, "m", yaml, true)
	return Load(filepath.Join(modelDir, "model.yaml"), modelDir)
}

func TestLoadRejects(t *testing.T) {
	// Contradictory resource policy
	_, err := loadString(t, `
model_id: m
model_name: M
model_version: "1"
model_type: onnx
model_weights: w.onnx
resource_requirements:
  gpu_required: true
  cpu_fallback_allowed: true
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "contradictory")

	// Unknown runtime tag
	_, err = loadString(t, `
model_id: m
model_name: M
model_version: "1"
model_type: tensorflow
model_weights: w.pb
`)
	require.Error(t, err)

	// Threshold out of range
	_, err = loadString(t, `
model_id: m
model_name: M
model_version: "1"
model_type: onnx
model_weights: w.onnx
confidence_threshold: 1.5
`)
	require.Error(t, err)

	// Resolution with a zero dimension
	_, err = loadString(t, `
model_id: m
model_name: M
model_version: "1"
model_type: onnx
model_weights: w.onnx
expected_resolution: [0, 640]
`)
	require.Error(t, err)

	// Missing identity
	_, err = loadString(t, `
model_name: M
model_version: "1"
model_type: onnx
model_weights: w.onnx
`)
	require.Error(t, err)

	// Not YAML at all
	_, err = loadString(t, "{{{{")
	require.Error(t, err)
}

func TestLoadGPURequired(t *testing.T) {
	desc, err := loadString(t, `
model_id: m
model_name: M
model_version: "1"
model_type: pytorch
model_weights: w.pt
resource_requirements:
  gpu_required: true
  cpu_fallback_allowed: false
`)
	require.NoError(t, err)
	require.True(t, desc.Resources.GPURequired)
	require.False(t, desc.Resources.CPUFallbackAllowed)
}

func TestDiscover(t *testing.T) {
	log := logs.NewTestingLog(t)
	root := t.TempDir()

	writeModel(t, root, "good", validYaml, true)
	writeModel(t, root, "no_yaml", "", true)
	writeModel(t, root, "bad_yaml", "model_id: [broken", true)
	writeModel(t, root, "no_weights", `
model_id: orphan
model_name: Orphan
model_version: "1"
model_type: onnx
model_weights: weights/missing.onnx
`, false)
	// Plain files in the root are ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0644))

	reg := Discover(log, root)
	require.Len(t, reg.Available, 1)
	require.Contains(t, reg.Available, "yolov8n")
	require.Equal(t, ReasonMissingModelYaml, reg.Unavailable["no_yaml"])
	require.Equal(t, ReasonInvalidModelYaml, reg.Unavailable["bad_yaml"])
	require.Equal(t, ReasonMissingWeights, reg.Unavailable["no_weights"])

	// Discovery is idempotent
	again := Discover(log, root)
	require.Equal(t, len(reg.Available), len(again.Available))
	require.Equal(t, reg.Unavailable, again.Unavailable)
	require.Equal(t, reg.Available["yolov8n"].ModelID, again.Available["yolov8n"].ModelID)
}

func TestDiscoverMissingRoot(t *testing.T) {
	log := logs.NewTestingLog(t)
	reg := Discover(log, filepath.Join(t.TempDir(), "does-not-exist"))
	require.Len(t, reg.Available, 0)
	require.Len(t, reg.Unavailable, 0)
}

func TestDescriptorContradictionIsInvalidYaml(t *testing.T) {
	log := logs.NewTestingLog(t)
	root := t.TempDir()
	writeModel(t, root, "contradiction", `
model_id: m
model_name: M
model_version: "1"
model_type: onnx
model_weights: weights/yolov8n.onnx
resource_requirements:
  gpu_required: true
  cpu_fallback_allowed: true
`, true)
	reg := Discover(log, root)
	require.Len(t, reg.Available, 0)
	require.Equal(t, ReasonInvalidModelYaml, reg.Unavailable["contradiction"])
}
