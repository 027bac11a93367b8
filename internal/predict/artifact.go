package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Classifier is the loaded form of one pre-trained model. Predict takes
// feature values in FeatureColumns order and returns the model's own label
// plus the probability of class 1.
type Classifier interface {
	FeatureColumns() []string
	Predict(values []float64) (label int, probability float64, err error)
}

// classifierKinds is the compile-time registry: every artifact kind the
// engine can evaluate. Unknown kinds fail the load.
var classifierKinds = map[string]func(*artifact) (Classifier, error){
	"gaussian_nb":   newGaussianNB,
	"tree_ensemble": newTreeEnsemble,
	"boosted_trees": newBoostedTrees,
}

// artifact is the on-disk JSON shape shared by all model kinds.
type artifact struct {
	Kind           string    `json:"kind"`
	FeatureColumns []string  `json:"feature_columns"`
	NaiveBayes     *nbParams `json:"naive_bayes,omitempty"`
	Trees          []tree    `json:"trees,omitempty"`
	BaseScore      float64   `json:"base_score,omitempty"`
}

type nbParams struct {
	ClassPriors [2]float64   `json:"class_priors"`
	Means       [2][]float64 `json:"means"`
	Variances   [2][]float64 `json:"variances"`
}

type treeNode struct {
	Feature   int     `json:"feature"` // -1 marks a leaf
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// LoadClassifier reads and validates a model artifact. Any problem here is a
// startup-fatal condition for the engine: the process must not run with a
// silently degraded model set.
func LoadClassifier(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if len(art.FeatureColumns) == 0 {
		return nil, fmt.Errorf("artifact %s has no feature_columns", path)
	}

	build, ok := classifierKinds[art.Kind]
	if !ok {
		return nil, fmt.Errorf("artifact %s has unknown kind %q", path, art.Kind)
	}
	classifier, err := build(&art)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return classifier, nil
}

type gaussianNB struct {
	columns   []string
	priors    [2]float64
	means     [2][]float64
	variances [2][]float64
}

func newGaussianNB(art *artifact) (Classifier, error) {
	if art.NaiveBayes == nil {
		return nil, fmt.Errorf("gaussian_nb artifact missing naive_bayes parameters")
	}
	p := art.NaiveBayes
	for class := 0; class < 2; class++ {
		if len(p.Means[class]) != len(art.FeatureColumns) || len(p.Variances[class]) != len(art.FeatureColumns) {
			return nil, fmt.Errorf("gaussian_nb class %d parameters do not match %d feature columns",
				class, len(art.FeatureColumns))
		}
	}
	return &gaussianNB{
		columns:   art.FeatureColumns,
		priors:    p.ClassPriors,
		means:     p.Means,
		variances: p.Variances,
	}, nil
}

func (g *gaussianNB) FeatureColumns() []string { return g.columns }

func (g *gaussianNB) Predict(values []float64) (int, float64, error) {
	if len(values) != len(g.columns) {
		return 0, 0, fmt.Errorf("expected %d feature values, got %d", len(g.columns), len(values))
	}

	var logLikelihood [2]float64
	for class := 0; class < 2; class++ {
		prior := g.priors[class]
		if prior <= 0 {
			prior = 1e-12
		}
		sum := math.Log(prior)
		for i, v := range values {
			variance := g.variances[class][i]
			if variance <= 0 {
				variance = 1e-9
			}
			diff := v - g.means[class][i]
			sum += -0.5*math.Log(2*math.Pi*variance) - diff*diff/(2*variance)
		}
		logLikelihood[class] = sum
	}

	// Normalize in log space to avoid underflow across 56+ features.
	maxLL := math.Max(logLikelihood[0], logLikelihood[1])
	p0 := math.Exp(logLikelihood[0] - maxLL)
	p1 := math.Exp(logLikelihood[1] - maxLL)
	probability := p1 / (p0 + p1)

	label := 0
	if probability >= 0.5 {
		label = 1
	}
	return label, probability, nil
}

type treeEnsemble struct {
	columns []string
	trees   []tree
}

func newTreeEnsemble(art *artifact) (Classifier, error) {
	if len(art.Trees) == 0 {
		return nil, fmt.Errorf("tree_ensemble artifact has no trees")
	}
	if err := validateTrees(art.Trees, len(art.FeatureColumns)); err != nil {
		return nil, err
	}
	return &treeEnsemble{columns: art.FeatureColumns, trees: art.Trees}, nil
}

func (e *treeEnsemble) FeatureColumns() []string { return e.columns }

// Predict averages the class-1 probability stored at each tree's leaf.
func (e *treeEnsemble) Predict(values []float64) (int, float64, error) {
	if len(values) != len(e.columns) {
		return 0, 0, fmt.Errorf("expected %d feature values, got %d", len(e.columns), len(values))
	}
	sum := 0.0
	for i := range e.trees {
		leaf, err := evalTree(&e.trees[i], values)
		if err != nil {
			return 0, 0, err
		}
		sum += leaf
	}
	probability := sum / float64(len(e.trees))
	label := 0
	if probability >= 0.5 {
		label = 1
	}
	return label, probability, nil
}

type boostedTrees struct {
	columns   []string
	trees     []tree
	baseScore float64
}

func newBoostedTrees(art *artifact) (Classifier, error) {
	if len(art.Trees) == 0 {
		return nil, fmt.Errorf("boosted_trees artifact has no trees")
	}
	if err := validateTrees(art.Trees, len(art.FeatureColumns)); err != nil {
		return nil, err
	}
	return &boostedTrees{columns: art.FeatureColumns, trees: art.Trees, baseScore: art.BaseScore}, nil
}

func (b *boostedTrees) FeatureColumns() []string { return b.columns }

// Predict sums leaf scores over the boosting rounds and squashes through a
// sigmoid, the standard binary-logistic objective.
func (b *boostedTrees) Predict(values []float64) (int, float64, error) {
	if len(values) != len(b.columns) {
		return 0, 0, fmt.Errorf("expected %d feature values, got %d", len(b.columns), len(values))
	}
	score := b.baseScore
	for i := range b.trees {
		leaf, err := evalTree(&b.trees[i], values)
		if err != nil {
			return 0, 0, err
		}
		score += leaf
	}
	probability := 1 / (1 + math.Exp(-score))
	label := 0
	if probability >= 0.5 {
		label = 1
	}
	return label, probability, nil
}

func validateTrees(trees []tree, featureCount int) error {
	for ti, t := range trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range t.Nodes {
			if node.Feature >= featureCount {
				return fmt.Errorf("tree %d node %d splits on feature %d of %d", ti, ni, node.Feature, featureCount)
			}
			if node.Feature >= 0 {
				if node.Left < 0 || node.Left >= len(t.Nodes) || node.Right < 0 || node.Right >= len(t.Nodes) {
					return fmt.Errorf("tree %d node %d has out-of-range children", ti, ni)
				}
			}
		}
	}
	return nil
}

func evalTree(t *tree, values []float64) (float64, error) {
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := t.Nodes[idx]
		if node.Feature < 0 {
			return node.Value, nil
		}
		if values[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return 0, fmt.Errorf("tree traversal did not reach a leaf")
}
