// Package serving holds the inference side of the demo: resolving and
// loading the production model at boot and answering prediction requests
// against the loaded snapshot.
package serving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/diamondlab/pricer/pkg/model"
	"github.com/diamondlab/pricer/pkg/registry"
)

// Artifact paths the training job writes, relative to the run root.
const (
	ModelArtifactPath   = "model/model.json"
	ColumnsArtifactPath = "model_meta/training_columns.json"
)

// Snapshot is everything the serving process needs from one model version.
// It never changes after Load returns; picking up a newly promoted version
// requires a process restart.
type Snapshot struct {
	Forest  *model.Forest
	Columns []string
	Name    string
	Version int
	Stage   string
	RunID   string
}

// Load resolves the production version of the named model, falling back to
// the latest version of any stage, and pulls the model blob plus the
// training column list into memory.
func Load(ctx context.Context, reg registry.Registry, name string) (*Snapshot, error) {
	mv, err := reg.GetLatestVersion(ctx, name, []string{registry.StageProduction})
	if errors.Is(err, registry.ErrNotFound) {
		logrus.Warnf("no Production version of %q, falling back to latest", name)
		mv, err = reg.GetLatestVersion(ctx, name, nil)
	}
	if errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("no model found for %q: register and promote one first", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model %q: %w", name, err)
	}

	logrus.Infof("loading %s version %d (stage %s, run %s)", mv.Name, mv.Version, mv.CurrentStage, mv.RunID)

	blob, err := reg.DownloadArtifact(ctx, mv.RunID, ModelArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download model artifact: %w", err)
	}
	forest, err := model.Unmarshal(blob)
	if err != nil {
		return nil, err
	}

	raw, err := reg.DownloadArtifact(ctx, mv.RunID, ColumnsArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download training columns artifact: %w", err)
	}
	var columns []string
	if err := json.Unmarshal(raw, &columns); err != nil {
		return nil, fmt.Errorf("failed to decode training columns: %w", err)
	}
	if len(columns) != forest.NFeatures {
		return nil, fmt.Errorf("training columns (%d) do not match model features (%d)",
			len(columns), forest.NFeatures)
	}

	logrus.Infof("model loaded with %d features", len(columns))

	return &Snapshot{
		Forest:  forest,
		Columns: columns,
		Name:    mv.Name,
		Version: mv.Version,
		Stage:   mv.CurrentStage,
		RunID:   mv.RunID,
	}, nil
}
