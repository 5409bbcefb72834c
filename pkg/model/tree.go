package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Tree is a regression tree in flattened form. Node i splits on
// Feature[i] at Threshold[i]; Feature[i] == leafMarker marks a leaf whose
// prediction is Value[i]. Children are indices into the same arrays.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

const leafMarker = -1

type treeBuilder struct {
	x           *mat.Dense
	y           []float64
	minLeafSize int
	tree        *Tree
}

// fitTree grows a CART regression tree on the given bootstrap sample,
// choosing splits by variance reduction and growing until nodes are pure
// or smaller than minLeafSize.
func fitTree(x *mat.Dense, y []float64, samples []int, minLeafSize int) *Tree {
	b := &treeBuilder{
		x:           x,
		y:           y,
		minLeafSize: minLeafSize,
		tree:        &Tree{},
	}
	b.grow(samples)
	return b.tree
}

func (b *treeBuilder) addNode() int {
	b.tree.Feature = append(b.tree.Feature, leafMarker)
	b.tree.Threshold = append(b.tree.Threshold, 0)
	b.tree.Left = append(b.tree.Left, leafMarker)
	b.tree.Right = append(b.tree.Right, leafMarker)
	b.tree.Value = append(b.tree.Value, 0)
	return len(b.tree.Feature) - 1
}

func (b *treeBuilder) grow(samples []int) int {
	node := b.addNode()
	b.tree.Value[node] = mean(b.y, samples)

	if len(samples) < 2*b.minLeafSize || pure(b.y, samples) {
		return node
	}

	feature, threshold, ok := b.bestSplit(samples)
	if !ok {
		return node
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.x.At(s, feature) <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) < b.minLeafSize || len(right) < b.minLeafSize {
		return node
	}

	b.tree.Feature[node] = feature
	b.tree.Threshold[node] = threshold
	b.tree.Left[node] = b.grow(left)
	b.tree.Right[node] = b.grow(right)
	return node
}

// bestSplit scans every feature for the threshold that maximizes the
// reduction in weighted sum of squared deviations.
func (b *treeBuilder) bestSplit(samples []int) (int, float64, bool) {
	_, nFeatures := b.x.Dims()

	total := len(samples)
	var sum, sumSq float64
	for _, s := range samples {
		v := b.y[s]
		sum += v
		sumSq += v * v
	}
	parentSSE := sumSq - sum*sum/float64(total)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	found := false

	order := make([]int, len(samples))

	for feature := 0; feature < nFeatures; feature++ {
		copy(order, samples)
		sort.Slice(order, func(i, j int) bool {
			return b.x.At(order[i], feature) < b.x.At(order[j], feature)
		})

		var leftSum, leftSq float64
		for i := 0; i < total-1; i++ {
			v := b.y[order[i]]
			leftSum += v
			leftSq += v * v

			cur := b.x.At(order[i], feature)
			next := b.x.At(order[i+1], feature)
			if cur == next {
				continue
			}

			nLeft := float64(i + 1)
			nRight := float64(total - i - 1)
			rightSum := sum - leftSum
			rightSq := sumSq - leftSq
			sse := (leftSq - leftSum*leftSum/nLeft) + (rightSq - rightSum*rightSum/nRight)
			gain := parentSSE - sse

			if gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

// predictRow walks the tree for a single row of features.
func (t *Tree) predictRow(row []float64) float64 {
	node := 0
	for t.Feature[node] != leafMarker {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

func mean(y []float64, samples []int) float64 {
	var sum float64
	for _, s := range samples {
		sum += y[s]
	}
	return sum / float64(len(samples))
}

func pure(y []float64, samples []int) bool {
	first := y[samples[0]]
	for _, s := range samples[1:] {
		if y[s] != first {
			return false
		}
	}
	return true
}

// RMSE is the root mean squared error between predictions and targets.
func RMSE(predicted, actual []float64) float64 {
	var sum float64
	for i := range predicted {
		d := predicted[i] - actual[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(predicted)))
}
