// Package train implements the training pipeline: dataset to fitted model
// to a registered, Production-labeled version in the registry. Every step
// is fatal on failure; the Production label only moves after everything
// else succeeded.
package train

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diamondlab/pricer/pkg/config"
	"github.com/diamondlab/pricer/pkg/dataset"
	"github.com/diamondlab/pricer/pkg/frame"
	"github.com/diamondlab/pricer/pkg/model"
	"github.com/diamondlab/pricer/pkg/registry"
	"github.com/diamondlab/pricer/pkg/serving"
)

const experimentName = "diamond-price"

// Result summarizes a finished training run.
type Result struct {
	RunID   string
	Version int
	RMSE    float64
	Columns []string
}

// Run executes the whole pipeline once.
func Run(ctx context.Context, cfg *config.Config, reg registry.Registry) (*Result, error) {
	rows, err := dataset.Load(ctx, cfg.DatasetPath)
	if err != nil {
		return nil, err
	}

	logrus.Info("preprocessing data")
	records, prices := dataset.Features(rows)
	features, cerr := frame.Dummies(records, true)
	if cerr != nil {
		return nil, fmt.Errorf("failed to encode features: %w", cerr)
	}
	columns := features.Columns()

	trainIdx, testIdx := split(features.Rows(), cfg.Training.TestFraction, cfg.Training.RandomState)
	trainX := features.Select(trainIdx)
	testX := features.Select(testIdx)
	trainY := selectFloats(prices, trainIdx)
	testY := selectFloats(prices, testIdx)

	logrus.Infof("training model on %d rows, holding out %d", len(trainIdx), len(testIdx))
	params := model.Params{
		NEstimators: cfg.Training.NEstimators,
		RandomState: cfg.Training.RandomState,
		MinLeafSize: cfg.Training.MinLeafSize,
	}
	forest, err := model.Fit(trainX.Matrix(), trainY, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}

	predicted, err := forest.Predict(testX.Matrix())
	if err != nil {
		return nil, fmt.Errorf("failed to score holdout split: %w", err)
	}
	rmse := model.RMSE(predicted, testY)
	logrus.Infof("holdout rmse: %.2f", rmse)

	version, runID, err := publish(ctx, reg, cfg, forest, columns, rmse)
	if err != nil {
		return nil, err
	}

	return &Result{RunID: runID, Version: version, RMSE: rmse, Columns: columns}, nil
}

// publish records the run and its artifacts, registers a new version and
// promotes it to Production, archiving the previous one.
func publish(ctx context.Context, reg registry.Registry, cfg *config.Config, forest *model.Forest, columns []string, rmse float64) (int, string, error) {
	run, err := reg.CreateRun(ctx, experimentName)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create run: %w", err)
	}

	fail := func(step string, err error) (int, string, error) {
		if finishErr := reg.FinishRun(ctx, run.ID, registry.RunStatusFailed); finishErr != nil {
			logrus.Warnf("could not mark run %s failed: %v", run.ID, finishErr)
		}
		return 0, "", fmt.Errorf("%s: %w", step, err)
	}

	if err := reg.LogParam(ctx, run.ID, "n_estimators", strconv.Itoa(cfg.Training.NEstimators)); err != nil {
		return fail("failed to log n_estimators", err)
	}
	if err := reg.LogParam(ctx, run.ID, "random_state", strconv.FormatInt(cfg.Training.RandomState, 10)); err != nil {
		return fail("failed to log random_state", err)
	}
	if err := reg.LogMetric(ctx, run.ID, "rmse", rmse, time.Now().UnixMilli()); err != nil {
		return fail("failed to log rmse", err)
	}

	blob, err := model.Marshal(forest)
	if err != nil {
		return fail("failed to serialize model", err)
	}
	if err := reg.UploadArtifact(ctx, run.ID, serving.ModelArtifactPath, blob); err != nil {
		return fail("failed to upload model artifact", err)
	}

	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fail("failed to serialize training columns", err)
	}
	if err := reg.UploadArtifact(ctx, run.ID, serving.ColumnsArtifactPath, columnsJSON); err != nil {
		return fail("failed to upload training columns artifact", err)
	}

	if err := reg.EnsureRegisteredModel(ctx, cfg.ModelName); err != nil {
		return fail("failed to ensure registered model", err)
	}
	source := fmt.Sprintf("runs:/%s/model", run.ID)
	mv, err := reg.CreateModelVersion(ctx, cfg.ModelName, run.ID, source)
	if err != nil {
		return fail("failed to create model version", err)
	}

	promoted, err := reg.TransitionStage(ctx, cfg.ModelName, mv.Version, registry.StageProduction, true)
	if err != nil {
		return fail("failed to promote model version", err)
	}

	if err := reg.FinishRun(ctx, run.ID, registry.RunStatusFinished); err != nil {
		return 0, "", fmt.Errorf("failed to finish run: %w", err)
	}

	logrus.Infof("registered %s version %d and promoted it to %s",
		promoted.Name, promoted.Version, promoted.CurrentStage)
	return promoted.Version, run.ID, nil
}

// split shuffles row indices with the fixed seed and carves off the test
// fraction, the same 80/20 split the reference pipeline uses.
func split(rows int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(rows)
	nTest := int(float64(rows) * testFraction)
	if nTest < 1 {
		nTest = 1
	}
	return perm[nTest:], perm[:nTest]
}

func selectFloats(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
