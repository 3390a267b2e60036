package modeldesc

// Package modeldesc parses and validates the on-disk model descriptors
// (model.yaml) and performs the one-shot startup scan of the models root.

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Known runtime tags
const (
	ModelTypePyTorch = "pytorch"
	ModelTypeONNX    = "onnx"
)

type Resources struct {
	GPURequired        bool `yaml:"gpu_required"`
	GPUMemoryMB        int  `yaml:"gpu_memory_mb"`
	CPUFallbackAllowed bool `yaml:"cpu_fallback_allowed"`
}

// Descriptor is the parsed, validated model.yaml. Immutable after Load.
type Descriptor struct {
	ModelID             string                 `yaml:"model_id"`
	ModelName           string                 `yaml:"model_name"`
	ModelVersion        string                 `yaml:"model_version"`
	SupportedTasks      []string               `yaml:"supported_tasks"`
	InputFormat         string                 `yaml:"input_format"`
	ExpectedResolution  []int                  `yaml:"expected_resolution"`
	Resources           Resources              `yaml:"resource_requirements"`
	ModelType           string                 `yaml:"model_type"`
	ModelWeights        string                 `yaml:"model_weights"`
	ConfidenceThreshold float64                `yaml:"confidence_threshold"`
	NmsIouThreshold     *float64               `yaml:"nms_iou_threshold"`
	OutputSchema        map[string]interface{} `yaml:"output_schema"`
	Description         string                 `yaml:"description"`

	// Resolved at load time, not part of the YAML
	Dir         string `yaml:"-"` // directory containing model.yaml
	WeightsPath string `yaml:"-"` // ModelWeights resolved against Dir
}

// Load parses and validates a model.yaml. Any violation yields (nil, reason);
// the reason is for logging only and never escapes to request handling.
// Weights existence is deliberately not checked here; discovery classifies a
// missing weights file separately from an invalid descriptor.
func Load(yamlPath, modelDir string) (*Descriptor, error) {
	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", yamlPath, err)
	}
	d := &Descriptor{
		InputFormat:         "NV12",
		ExpectedResolution:  []int{640, 640},
		ConfidenceThreshold: 0.5,
		Resources:           Resources{CPUFallbackAllowed: true},
	}
	if err := yaml.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("invalid YAML in %v: %w", yamlPath, err)
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", yamlPath, err)
	}
	d.Dir = modelDir
	if filepath.IsAbs(d.ModelWeights) {
		d.WeightsPath = d.ModelWeights
	} else {
		d.WeightsPath = filepath.Join(modelDir, d.ModelWeights)
	}
	return d, nil
}

func (d *Descriptor) validate() error {
	if d.ModelID == "" {
		return fmt.Errorf("model_id missing")
	}
	if d.ModelName == "" {
		return fmt.Errorf("model_name missing")
	}
	if d.ModelVersion == "" {
		return fmt.Errorf("model_version missing")
	}
	if d.ModelType != ModelTypePyTorch && d.ModelType != ModelTypeONNX {
		return fmt.Errorf("model_type must be '%v' or '%v', got '%v'", ModelTypePyTorch, ModelTypeONNX, d.ModelType)
	}
	if d.ModelWeights == "" {
		return fmt.Errorf("model_weights missing")
	}
	if len(d.ExpectedResolution) != 2 {
		return fmt.Errorf("expected_resolution must be [width, height]")
	}
	if d.ExpectedResolution[0] <= 0 || d.ExpectedResolution[1] <= 0 {
		return fmt.Errorf("expected_resolution dimensions must be positive, got %v", d.ExpectedResolution)
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", d.ConfidenceThreshold)
	}
	if d.NmsIouThreshold != nil && (*d.NmsIouThreshold < 0 || *d.NmsIouThreshold > 1) {
		return fmt.Errorf("nms_iou_threshold must be in [0,1], got %v", *d.NmsIouThreshold)
	}
	if d.Resources.GPURequired && d.Resources.CPUFallbackAllowed {
		return fmt.Errorf("gpu_required and cpu_fallback_allowed are contradictory")
	}
	return nil
}

// SchemaString returns a string-typed key from output_schema, or def.
func (d *Descriptor) SchemaString(key, def string) string {
	if v, ok := d.OutputSchema[key].(string); ok && v != "" {
		return v
	}
	return def
}

// SchemaBool returns a bool-typed key from output_schema, or false.
func (d *Descriptor) SchemaBool(key string) bool {
	v, _ := d.OutputSchema[key].(bool)
	return v
}

// SchemaShape returns an integer-list key from output_schema, or nil.
func (d *Descriptor) SchemaShape(key string) []int64 {
	list, ok := d.OutputSchema[key].([]interface{})
	if !ok {
		return nil
	}
	shape := make([]int64, 0, len(list))
	for _, v := range list {
		n, ok := v.(int)
		if !ok {
			return nil
		}
		shape = append(shape, int64(n))
	}
	return shape
}
