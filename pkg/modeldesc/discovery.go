package modeldesc

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cyclopcam/logs"
)

// UnavailableReason classifies why a model directory did not produce a
// usable descriptor.
type UnavailableReason string

const (
	ReasonMissingModelYaml UnavailableReason = "missing_model_yaml"
	ReasonInvalidModelYaml UnavailableReason = "invalid_model_yaml"
	ReasonMissingWeights   UnavailableReason = "missing_weights"
)

// Registry is the outcome of the one-shot startup scan. Frozen afterwards:
// there is no hot reload and no filesystem watching.
type Registry struct {
	Available   map[string]*Descriptor       // model_id -> descriptor
	Unavailable map[string]UnavailableReason // directory entry -> reason
}

// Discover scans every direct child directory of root for a model.yaml and
// classifies each as available or unavailable. A missing root is not fatal;
// it yields an empty registry.
func Discover(log logs.Log, root string) *Registry {
	reg := &Registry{
		Available:   map[string]*Descriptor{},
		Unavailable: map[string]UnavailableReason{},
	}

	log.Infof("Discovering models in %v", root)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Models directory %v does not exist. No models will be available.", root)
		} else {
			log.Errorf("Failed to read models directory %v: %v", root, err)
		}
		return reg
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		modelDir := filepath.Join(root, name)
		yamlPath := filepath.Join(modelDir, "model.yaml")
		if _, err := os.Stat(yamlPath); err != nil {
			log.Warnf("model.yaml not found in %v. Model '%v' marked unavailable.", modelDir, name)
			reg.Unavailable[name] = ReasonMissingModelYaml
			continue
		}
		desc, err := Load(yamlPath, modelDir)
		if err != nil {
			log.Warnf("Invalid model.yaml in %v: %v. Model '%v' marked unavailable.", modelDir, err, name)
			reg.Unavailable[name] = ReasonInvalidModelYaml
			continue
		}
		if _, err := os.Stat(desc.WeightsPath); err != nil {
			log.Warnf("Model weights not found at %v. Model '%v' marked unavailable.", desc.WeightsPath, name)
			reg.Unavailable[name] = ReasonMissingWeights
			continue
		}
		log.Infof("Discovered model %v (%v v%v, type %v, gpu_required %v)",
			desc.ModelID, desc.ModelName, desc.ModelVersion, desc.ModelType, desc.Resources.GPURequired)
		reg.Available[desc.ModelID] = desc
	}

	log.Infof("Model discovery complete: %v available, %v unavailable", len(reg.Available), len(reg.Unavailable))
	return reg
}
