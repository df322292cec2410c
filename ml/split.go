package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds row indices into the dataset for each partition.
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit partitions rows so that each class keeps its proportion in
// both partitions. The same labels, ratio and seed always give the same split.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (Split, error) {
	if testRatio <= 0 || testRatio >= 1 {
		return Split{}, fmt.Errorf("test ratio %v must be in (0, 1)", testRatio)
	}
	n := len(labels)
	if n < 2 {
		return Split{}, errors.New("at least two rows are required to split")
	}

	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	for _, class := range classes {
		if len(byClass[class]) < 2 {
			return Split{}, fmt.Errorf("class %d has %d rows, at least 2 are required", class, len(byClass[class]))
		}
	}

	nTest := int(math.Ceil(testRatio * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < len(classes) || n-nTest < len(classes) {
		return Split{}, fmt.Errorf("cannot stratify %d rows over %d classes with test ratio %v", n, len(classes), testRatio)
	}
	quota := allocate(classes, byClass, nTest, n)

	rng := rand.New(rand.NewSource(seed))
	var split Split
	for _, class := range classes {
		members := append([]int(nil), byClass[class]...)
		rng.Shuffle(len(members), func(a, b int) { members[a], members[b] = members[b], members[a] })
		split.Test = append(split.Test, members[:quota[class]]...)
		split.Train = append(split.Train, members[quota[class]:]...)
	}
	rng.Shuffle(len(split.Train), func(a, b int) { split.Train[a], split.Train[b] = split.Train[b], split.Train[a] })
	rng.Shuffle(len(split.Test), func(a, b int) { split.Test[a], split.Test[b] = split.Test[b], split.Test[a] })
	return split, nil
}

// allocate distributes nTest over the classes by largest remainder, keeping at
// least one row of every class on each side.
func allocate(classes []int, byClass map[int][]int, nTest, n int) map[int]int {
	quota := make(map[int]int, len(classes))
	type remainder struct {
		class int
		frac  float64
	}
	remainders := make([]remainder, 0, len(classes))
	assigned := 0
	for _, class := range classes {
		exact := float64(nTest) * float64(len(byClass[class])) / float64(n)
		quota[class] = int(math.Floor(exact))
		assigned += quota[class]
		remainders = append(remainders, remainder{class: class, frac: exact - math.Floor(exact)})
	}
	sort.SliceStable(remainders, func(a, b int) bool { return remainders[a].frac > remainders[b].frac })
	for i := 0; assigned < nTest; i = (i + 1) % len(remainders) {
		class := remainders[i].class
		if quota[class] < len(byClass[class])-1 {
			quota[class]++
			assigned++
		}
	}
	for _, class := range classes {
		if quota[class] == 0 && len(byClass[class]) > 1 {
			quota[class] = 1
		}
		if quota[class] >= len(byClass[class]) {
			quota[class] = len(byClass[class]) - 1
		}
	}
	return quota
}
