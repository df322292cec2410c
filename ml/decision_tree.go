package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier stored as a flat node array; node 0 is the
// root and child fields are absolute indices.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Positive   float64 `json:"positive"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeConfig struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
}

func (dt *DecisionTree) ProbabilityOfPositive(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Positive, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state: cycle")
}

func (dt *DecisionTree) validate(width int) error {
	if len(dt.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if node.Positive < 0 || node.Positive > 1 || math.IsNaN(node.Positive) {
				return fmt.Errorf("node %d: leaf probability out of range", i)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= width {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.Nodes) || node.RightChild <= i || node.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func buildTree(features [][]float64, labels []int, sample []int, config treeConfig, rng *rand.Rand) DecisionTree {
	dt := DecisionTree{}
	dt.grow(features, labels, sample, 0, config, rng)
	return dt
}

// grow appends the subtree for sample and returns the index of its root.
func (dt *DecisionTree) grow(features [][]float64, labels []int, sample []int, depth int, config treeConfig, rng *rand.Rand) int {
	positives := 0
	for _, i := range sample {
		positives += labels[i]
	}
	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Positive:   float64(positives) / float64(len(sample)),
		IsLeaf:     true,
	})

	pure := positives == 0 || positives == len(sample)
	if pure || (config.maxDepth > 0 && depth >= config.maxDepth) || len(sample) < 2*config.minSamplesLeaf {
		return idx
	}

	feature, threshold, ok := findBestSplit(features, labels, sample, config, rng)
	if !ok {
		return idx
	}
	left, right := partition(features, sample, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := dt.grow(features, labels, left, depth+1, config, rng)
	rightIdx := dt.grow(features, labels, right, depth+1, config, rng)
	dt.Nodes[idx] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  leftIdx,
		RightChild: rightIdx,
		Positive:   dt.Nodes[idx].Positive,
		IsLeaf:     false,
	}
	return idx
}

func findBestSplit(features [][]float64, labels []int, sample []int, config treeConfig, rng *rand.Rand) (int, float64, bool) {
	width := len(features[sample[0]])
	order := rng.Perm(width)
	tries := config.maxFeatures
	if tries <= 0 || tries > width {
		tries = width
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, len(sample))
	totalPositive := 0
	for _, i := range sample {
		totalPositive += labels[i]
	}
	total := len(sample)

	// Past the sampled features, keep searching only until some split is valid.
	for n, featureIdx := range order {
		if n >= tries && bestFeature != -1 {
			break
		}
		copy(sorted, sample)
		sort.Slice(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})

		leftPositive := 0
		for k := 0; k < total-1; k++ {
			leftPositive += labels[sorted[k]]
			current := features[sorted[k]][featureIdx]
			next := features[sorted[k+1]][featureIdx]
			if current == next {
				continue
			}
			leftCount := k + 1
			rightCount := total - leftCount
			if leftCount < config.minSamplesLeaf || rightCount < config.minSamplesLeaf {
				continue
			}
			impurity := weightedGini(leftPositive, leftCount, totalPositive-leftPositive, rightCount)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func partition(features [][]float64, sample []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(sample))
	right := make([]int, 0, len(sample))
	for _, i := range sample {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func weightedGini(leftPositive, leftCount, rightPositive, rightCount int) float64 {
	total := float64(leftCount + rightCount)
	return float64(leftCount)/total*gini(leftPositive, leftCount) +
		float64(rightCount)/total*gini(rightPositive, rightCount)
}

func gini(positive, count int) float64 {
	if count == 0 {
		return 0
	}
	p := float64(positive) / float64(count)
	return 1 - p*p - (1-p)*(1-p)
}
