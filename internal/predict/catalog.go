package predict

import "github.com/rinconlabs/firewatch/internal/models"

// Catalog lists every model the engine knows how to load. It is data, not
// code: the artifact file names how to evaluate itself via its "kind" field,
// and the kind registry in artifact.go maps kinds to evaluators.
var Catalog = []models.ModelDescriptor{
	{
		ModelID:          "nb_balanced",
		Name:             "Naive Bayes (Balanced)",
		Description:      "Gaussian naive Bayes trained on the balanced split.",
		ArtifactFilename: "balanced_nb_model.json",
	},
	{
		ModelID:          "rf_balanced",
		Name:             "Random Forest (Balanced)",
		Description:      "Tree ensemble trained on the balanced split.",
		ArtifactFilename: "balanced_rf_model.json",
	},
	{
		ModelID:          "xgb_balanced",
		Name:             "XGBoost (Balanced)",
		Description:      "Boosted trees trained on the balanced split.",
		ArtifactFilename: "balanced_xgb_model.json",
	},
	{
		ModelID:          "nb_unbalanced",
		Name:             "Naive Bayes (Unbalanced)",
		Description:      "Gaussian naive Bayes trained on the unbalanced split.",
		ArtifactFilename: "unbalanced_nb_model.json",
	},
	{
		ModelID:          "rf_unbalanced",
		Name:             "Random Forest (Unbalanced)",
		Description:      "Tree ensemble trained on the unbalanced split.",
		ArtifactFilename: "unbalanced_rf_model.json",
	},
	{
		ModelID:          "xgb_unbalanced",
		Name:             "XGBoost (Unbalanced)",
		Description:      "Boosted trees trained on the unbalanced split.",
		ArtifactFilename: "unbalanced_xgb_model.json",
	},
}

var catalogByID = func() map[string]models.ModelDescriptor {
	m := make(map[string]models.ModelDescriptor, len(Catalog))
	for _, entry := range Catalog {
		m[entry.ModelID] = entry
	}
	return m
}()

// Descriptor looks up a catalog entry by model id.
func Descriptor(modelID string) (models.ModelDescriptor, bool) {
	entry, ok := catalogByID[modelID]
	return entry, ok
}
