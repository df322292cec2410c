package ml

// Classifier is a fitted binary model over preprocessed feature vectors.
type Classifier interface {
	Kind() string
	ProbabilityOfPositive(vector []float64) (float64, error)
}

// Candidate is one model family taking part in training-time selection.
type Candidate interface {
	Name() string
	Fit(features [][]float64, labels []int) (Classifier, error)
}

// DefaultCandidates lists the model families in evaluation order. The order
// decides accuracy ties: the first evaluated candidate wins.
func DefaultCandidates(trees int, seed int64) []Candidate {
	return []Candidate{
		NewLogisticRegressionCandidate(DefaultLogisticRegressionConfig()),
		NewRandomForestCandidate(RandomForestConfig{
			Trees:          trees,
			MaxDepth:       DefaultRandomForestConfig().MaxDepth,
			MinSamplesLeaf: DefaultRandomForestConfig().MinSamplesLeaf,
			Seed:           seed,
		}),
	}
}
