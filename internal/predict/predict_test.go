package predict

import (
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact %s: %v", filename, err)
	}
}

const nbArtifact = `{
	"kind": "gaussian_nb",
	"feature_columns": ["temperature_1", "wind_speed_1"],
	"naive_bayes": {
		"class_priors": [0.5, 0.5],
		"means": [[0, 0], [30, 20]],
		"variances": [[4, 4], [4, 4]]
	}
}`

const stumpArtifact = `{
	"kind": "tree_ensemble",
	"feature_columns": ["temperature_1"],
	"trees": [
		{"nodes": [
			{"feature": 0, "threshold": 25, "left": 1, "right": 2},
			{"feature": -1, "value": 0.1},
			{"feature": -1, "value": 0.9}
		]}
	]
}`

const boostedArtifact = `{
	"kind": "boosted_trees",
	"feature_columns": ["temperature_1"],
	"base_score": 0,
	"trees": [
		{"nodes": [
			{"feature": 0, "threshold": 25, "left": 1, "right": 2},
			{"feature": -1, "value": -2.0},
			{"feature": -1, "value": 2.0}
		]}
	]
}`

func TestLoadClassifierGaussianNB(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "nb.json", nbArtifact)

	classifier, err := LoadClassifier(filepath.Join(dir, "nb.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Hot and windy sits on the class-1 centroid.
	label, prob, err := classifier.Predict([]float64{30, 20})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if label != 1 || prob < 0.9 {
		t.Errorf("hot sample: label=%d prob=%g, want label 1 with high probability", label, prob)
	}

	label, prob, err = classifier.Predict([]float64{0, 0})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if label != 0 || prob > 0.1 {
		t.Errorf("cold sample: label=%d prob=%g, want label 0 with low probability", label, prob)
	}
}

func TestLoadClassifierTreeEnsemble(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "rf.json", stumpArtifact)

	classifier, err := LoadClassifier(filepath.Join(dir, "rf.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	_, prob, err := classifier.Predict([]float64{30})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if prob != 0.9 {
		t.Errorf("prob = %g, want 0.9 from the right leaf", prob)
	}

	_, prob, err = classifier.Predict([]float64{20})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if prob != 0.1 {
		t.Errorf("prob = %g, want 0.1 from the left leaf", prob)
	}
}

func TestLoadClassifierBoostedTrees(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "xgb.json", boostedArtifact)

	classifier, err := LoadClassifier(filepath.Join(dir, "xgb.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	label, prob, err := classifier.Predict([]float64{30})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if label != 1 || prob <= 0.5 {
		t.Errorf("hot sample: label=%d prob=%g, want sigmoid(2) above 0.5", label, prob)
	}
}

func TestLoadClassifierRejectsBadArtifacts(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown-kind.json":  `{"kind": "svm", "feature_columns": ["a"]}`,
		"no-columns.json":    `{"kind": "gaussian_nb", "feature_columns": []}`,
		"not-json.json":      `{kind:`,
		"no-params.json":     `{"kind": "gaussian_nb", "feature_columns": ["a"]}`,
		"no-trees.json":      `{"kind": "tree_ensemble", "feature_columns": ["a"]}`,
		"bad-feature.json":   `{"kind": "tree_ensemble", "feature_columns": ["a"], "trees": [{"nodes": [{"feature": 5, "threshold": 1, "left": 0, "right": 0}]}]}`,
		"bad-children.json":  `{"kind": "tree_ensemble", "feature_columns": ["a"], "trees": [{"nodes": [{"feature": 0, "threshold": 1, "left": 7, "right": 0}]}]}`,
	}
	for name, content := range cases {
		writeArtifact(t, dir, name, content)
		if _, err := LoadClassifier(filepath.Join(dir, name)); err == nil {
			t.Errorf("%s: expected load error", name)
		}
	}

	if _, err := LoadClassifier(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file: expected load error")
	}
}

func engineDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeArtifact(t, dir, "balanced_nb_model.json", nbArtifact)
	writeArtifact(t, dir, "balanced_rf_model.json", stumpArtifact)
	return dir
}

func TestNewEngineLoadsEnabledModels(t *testing.T) {
	engine, err := NewEngine(engineDir(t), []string{"nb_balanced", "rf_balanced"}, 0.5, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ids := engine.AvailableModelIDs()
	if len(ids) != 2 || ids[0] != "nb_balanced" || ids[1] != "rf_balanced" {
		t.Errorf("model ids = %v, want configuration order", ids)
	}
	if len(engine.Descriptors()) != 2 {
		t.Errorf("descriptors = %d, want 2", len(engine.Descriptors()))
	}
}

func TestNewEngineFailsOnUnknownModel(t *testing.T) {
	if _, err := NewEngine(engineDir(t), []string{"nb_balanced", "mystery"}, 0.5, nil); err == nil {
		t.Fatal("expected error for unknown model id")
	}
}

func TestNewEngineFailsOnMissingArtifact(t *testing.T) {
	// xgb_balanced is enabled but its artifact was never written.
	if _, err := NewEngine(engineDir(t), []string{"nb_balanced", "xgb_balanced"}, 0.5, nil); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestNewEngineRejectsBadThresholdOverride(t *testing.T) {
	_, err := NewEngine(engineDir(t), []string{"nb_balanced"}, 0.5, map[string]float64{"nb_balanced": 1.5})
	if err == nil {
		t.Fatal("expected error for out-of-range threshold override")
	}
}

func TestEnginePredictReindexesRow(t *testing.T) {
	engine, err := NewEngine(engineDir(t), []string{"nb_balanced"}, 0.5, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// wind_speed_1 is absent and must default to 0; extra keys are ignored.
	out, err := engine.Predict("nb_balanced", map[string]float64{
		"temperature_1": 0,
		"unrelated_9":   123,
	})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Label != 0 || out.Probability > 0.1 {
		t.Errorf("out = %+v, want low probability at the class-0 centroid", out)
	}
}

func TestEnginePredictThreshold(t *testing.T) {
	engine, err := NewEngine(engineDir(t), []string{"rf_balanced"}, 0.95, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// The hot leaf yields 0.9, below the 0.95 threshold.
	out, err := engine.Predict("rf_balanced", map[string]float64{"temperature_1": 30})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Probability != 0.9 || out.Label != 0 {
		t.Errorf("out = %+v, want probability 0.9 with label 0", out)
	}
}

func TestEnginePredictPerModelThresholdOverride(t *testing.T) {
	engine, err := NewEngine(engineDir(t), []string{"rf_balanced"}, 0.95, map[string]float64{"rf_balanced": 0.5})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	out, err := engine.Predict("rf_balanced", map[string]float64{"temperature_1": 30})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Label != 1 {
		t.Errorf("label = %d, want 1 under the overridden threshold", out.Label)
	}
}

func TestEnginePredictClampsProbability(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "balanced_rf_model.json", `{
		"kind": "tree_ensemble",
		"feature_columns": ["temperature_1"],
		"trees": [{"nodes": [{"feature": -1, "value": 1.5}]}]
	}`)

	engine, err := NewEngine(dir, []string{"rf_balanced"}, 0.5, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	out, err := engine.Predict("rf_balanced", map[string]float64{"temperature_1": 30})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Probability != 1 {
		t.Errorf("probability = %g, want clamp to 1", out.Probability)
	}
	if out.Label != 1 {
		t.Errorf("label = %d, want 1", out.Label)
	}
}

func TestEnginePredictUnknownModel(t *testing.T) {
	engine, err := NewEngine(engineDir(t), []string{"nb_balanced"}, 0.5, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := engine.Predict("rf_balanced", map[string]float64{}); err == nil {
		t.Fatal("expected error for model not enabled")
	}
}

func TestCatalogDescriptorLookup(t *testing.T) {
	d, ok := Descriptor("xgb_unbalanced")
	if !ok {
		t.Fatal("expected xgb_unbalanced in catalog")
	}
	if d.ArtifactFilename != "unbalanced_xgb_model.json" {
		t.Errorf("artifact = %q", d.ArtifactFilename)
	}
	if _, ok := Descriptor("nope"); ok {
		t.Error("unexpected catalog hit for unknown id")
	}
}
