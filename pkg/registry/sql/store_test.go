package sql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diamondlab/pricer/pkg/registry"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore("sqlite://"+filepath.Join(dir, "tracking.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	return store
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := NewStore("redis://localhost", "")
	require.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run, err := store.CreateRun(ctx, "diamond-price")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, registry.RunStatusRunning, run.Status)

	require.NoError(t, store.LogParam(ctx, run.ID, "n_estimators", "100"))
	require.NoError(t, store.LogMetric(ctx, run.ID, "rmse", 550.25, 1234))
	require.NoError(t, store.FinishRun(ctx, run.ID, registry.RunStatusFinished))

	// Reusing the experiment must not create a second one.
	second, err := store.CreateRun(ctx, "diamond-price")
	require.NoError(t, err)
	assert.Equal(t, run.ExperimentID, second.ExperimentID)
	assert.NotEqual(t, run.ID, second.ID)
}

func TestFinishUnknownRun(t *testing.T) {
	store := testStore(t)
	err := store.FinishRun(context.Background(), "nope", registry.RunStatusFailed)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestModelVersioningAndPromotion(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	name := "diamond-price-regressor"

	require.NoError(t, store.EnsureRegisteredModel(ctx, name))
	require.NoError(t, store.EnsureRegisteredModel(ctx, name)) // idempotent

	v1, err := store.CreateModelVersion(ctx, name, "run1", "runs:/run1/model")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, registry.StageNone, v1.CurrentStage)

	promoted, err := store.TransitionStage(ctx, name, v1.Version, registry.StageProduction, true)
	require.NoError(t, err)
	assert.Equal(t, registry.StageProduction, promoted.CurrentStage)

	v2, err := store.CreateModelVersion(ctx, name, "run2", "runs:/run2/model")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	// Promoting v2 archives v1.
	_, err = store.TransitionStage(ctx, name, v2.Version, registry.StageProduction, true)
	require.NoError(t, err)

	latest, err := store.GetLatestVersion(ctx, name, []string{registry.StageProduction})
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "run2", latest.RunID)

	archived, err := store.GetLatestVersion(ctx, name, []string{registry.StageArchived})
	require.NoError(t, err)
	assert.Equal(t, 1, archived.Version)
}

func TestGetLatestVersionNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.GetLatestVersion(context.Background(), "missing", nil)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestTransitionUnknownVersion(t *testing.T) {
	store := testStore(t)
	_, err := store.TransitionStage(context.Background(), "missing", 1, registry.StageProduction, false)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestArtifactRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UploadArtifact(ctx, "run1", "model_meta/training_columns.json", []byte(`["carat"]`)))

	data, err := store.DownloadArtifact(ctx, "run1", "model_meta/training_columns.json")
	require.NoError(t, err)
	assert.Equal(t, `["carat"]`, string(data))

	_, err = store.DownloadArtifact(ctx, "run1", "model_meta/missing.json")
	require.ErrorIs(t, err, registry.ErrNotFound)
}
