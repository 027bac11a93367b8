package predict

import (
	"fmt"
	"path/filepath"

	"github.com/rinconlabs/firewatch/internal/models"
)

// Output is one scored feature row. Label is 1 exactly when Probability
// meets the model's threshold.
type Output struct {
	Probability float64
	Label       int
}

type loadedModel struct {
	descriptor models.ModelDescriptor
	classifier Classifier
	threshold  float64
}

// Engine wraps the enabled classifiers behind a single contract. Every
// enabled model is loaded exactly once at construction; a missing or invalid
// artifact fails the whole engine, never a silently reduced model set.
type Engine struct {
	models map[string]*loadedModel
	order  []string
}

func NewEngine(artifactDir string, enabledModelIDs []string, threshold float64, perModelThresholds map[string]float64) (*Engine, error) {
	if len(enabledModelIDs) == 0 {
		return nil, fmt.Errorf("enabled model list cannot be empty")
	}

	engine := &Engine{models: make(map[string]*loadedModel, len(enabledModelIDs))}
	for _, modelID := range enabledModelIDs {
		descriptor, ok := Descriptor(modelID)
		if !ok {
			return nil, fmt.Errorf("unknown model id %q", modelID)
		}
		classifier, err := LoadClassifier(filepath.Join(artifactDir, descriptor.ArtifactFilename))
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", modelID, err)
		}
		modelThreshold := threshold
		if override, ok := perModelThresholds[modelID]; ok {
			if override < 0 || override > 1 {
				return nil, fmt.Errorf("threshold override for %s must be in [0,1], got %g", modelID, override)
			}
			modelThreshold = override
		}
		engine.models[modelID] = &loadedModel{
			descriptor: descriptor,
			classifier: classifier,
			threshold:  modelThreshold,
		}
		engine.order = append(engine.order, modelID)
	}
	return engine, nil
}

// AvailableModelIDs returns the enabled model ids in configuration order.
func (e *Engine) AvailableModelIDs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Descriptors returns the catalog entries for the loaded models.
func (e *Engine) Descriptors() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.models[id].descriptor)
	}
	return out
}

// Predict reindexes the feature row to the model's own column order,
// substituting 0.0 for anything the builder did not populate, then invokes
// the classifier. The probability is clamped to [0,1] before the threshold
// derives the label. An inference failure is returned to the caller and is
// never retried here.
func (e *Engine) Predict(modelID string, featureRow map[string]float64) (Output, error) {
	loaded, ok := e.models[modelID]
	if !ok {
		return Output{}, fmt.Errorf("unknown model id %q", modelID)
	}

	columns := loaded.classifier.FeatureColumns()
	values := make([]float64, len(columns))
	for i, column := range columns {
		values[i] = featureRow[column]
	}

	_, probability, err := loaded.classifier.Predict(values)
	if err != nil {
		return Output{}, fmt.Errorf("model %s inference: %w", modelID, err)
	}

	if probability < 0 {
		probability = 0
	} else if probability > 1 {
		probability = 1
	}

	label := 0
	if probability >= loaded.threshold {
		label = 1
	}
	return Output{Probability: probability, Label: label}, nil
}
