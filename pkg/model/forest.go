// Package model implements the random forest regressor behind the price
// predictions. A fitted Forest is immutable and safe for concurrent use.
package model

import (
	"errors"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

type Params struct {
	NEstimators int
	RandomState int64
	MinLeafSize int
}

type Forest struct {
	NFeatures int
	Trees     []*Tree
}

// Fit trains an ensemble of regression trees on bootstrap samples of the
// training data. Per-tree seeds are drawn up front from the master seed so
// the result does not depend on goroutine scheduling.
func Fit(x *mat.Dense, y []float64, params Params) (*Forest, error) {
	rows, nFeatures := x.Dims()
	if rows == 0 || nFeatures == 0 {
		return nil, errors.New("empty training matrix")
	}
	if len(y) != rows {
		return nil, errors.New("target length does not match training rows")
	}
	if params.NEstimators <= 0 {
		return nil, errors.New("n_estimators must be positive")
	}
	if params.MinLeafSize <= 0 {
		params.MinLeafSize = 1
	}

	master := rand.New(rand.NewSource(params.RandomState))
	seeds := make([]int64, params.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	forest := &Forest{
		NFeatures: nFeatures,
		Trees:     make([]*Tree, params.NEstimators),
	}

	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i := range forest.Trees {
		i := i
		group.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			samples := make([]int, rows)
			for j := range samples {
				samples[j] = rng.Intn(rows)
			}
			forest.Trees[i] = fitTree(x, y, samples, params.MinLeafSize)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return forest, nil
}

// Predict returns one prediction per row, the mean of the per-tree
// predictions. The matrix must have exactly NFeatures columns.
func (f *Forest) Predict(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != f.NFeatures {
		return nil, errors.New("feature count does not match the fitted model")
	}

	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		var sum float64
		for _, tree := range f.Trees {
			sum += tree.predictRow(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}
