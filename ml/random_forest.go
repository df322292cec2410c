package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const KindRandomForest = "random_forest"

type RandomForestConfig struct {
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64
}

func DefaultRandomForestConfig() RandomForestConfig {
	return RandomForestConfig{
		Trees:          200,
		MaxDepth:       0,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

// RandomForest averages the leaf positive fraction of bootstrapped trees.
type RandomForest struct {
	Width int            `json:"width"`
	Trees []DecisionTree `json:"trees"`
}

func (f *RandomForest) Kind() string {
	return KindRandomForest
}

func (f *RandomForest) ProbabilityOfPositive(vector []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("random forest: model not trained")
	}
	if len(vector) != f.Width {
		return 0, fmt.Errorf("random forest: expected %d features, got %d", f.Width, len(vector))
	}
	sum := 0.0
	for i := range f.Trees {
		p, err := f.Trees[i].ProbabilityOfPositive(vector)
		if err != nil {
			return 0, fmt.Errorf("random forest: tree %d: %w", i, err)
		}
		sum += p
	}
	return sum / float64(len(f.Trees)), nil
}

func (f *RandomForest) validate() error {
	if len(f.Trees) == 0 {
		return errors.New("random forest has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.Width); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

type randomForestCandidate struct {
	config RandomForestConfig
}

func NewRandomForestCandidate(config RandomForestConfig) Candidate {
	if config.Trees <= 0 {
		config.Trees = DefaultRandomForestConfig().Trees
	}
	if config.MinSamplesLeaf <= 0 {
		config.MinSamplesLeaf = 1
	}
	return &randomForestCandidate{config: config}
}

func (c *randomForestCandidate) Name() string {
	return "Random Forest"
}

func (c *randomForestCandidate) Fit(features [][]float64, labels []int) (Classifier, error) {
	if err := checkTrainingSet(features, labels); err != nil {
		return nil, err
	}
	width := len(features[0])
	tree := treeConfig{
		maxDepth:       c.config.MaxDepth,
		minSamplesLeaf: c.config.MinSamplesLeaf,
		maxFeatures:    int(math.Max(1, math.Floor(math.Sqrt(float64(width))))),
	}

	rng := rand.New(rand.NewSource(c.config.Seed))
	forest := &RandomForest{Width: width, Trees: make([]DecisionTree, 0, c.config.Trees)}
	for t := 0; t < c.config.Trees; t++ {
		treeRng := rand.New(rand.NewSource(rng.Int63()))
		sample := make([]int, len(features))
		for i := range sample {
			sample[i] = treeRng.Intn(len(features))
		}
		forest.Trees = append(forest.Trees, buildTree(features, labels, sample, tree, treeRng))
	}
	return forest, nil
}
