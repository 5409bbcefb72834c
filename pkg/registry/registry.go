// Package registry abstracts the model tracking service: versioned model
// storage, stage labels, run metadata and artifacts. Two backends exist,
// a REST client for a remote tracking server and an embedded SQL store.
package registry

import (
	"context"
	"errors"
)

// Model lifecycle stages as the tracking service names them.
const (
	StageNone       = "None"
	StageProduction = "Production"
	StageArchived   = "Archived"
)

// Run statuses.
const (
	RunStatusRunning  = "RUNNING"
	RunStatusFinished = "FINISHED"
	RunStatusFailed   = "FAILED"
)

// ErrNotFound is returned when a model, version or artifact does not exist.
var ErrNotFound = errors.New("not found")

// ModelVersion is one registered version of a named model.
type ModelVersion struct {
	Name         string
	Version      int
	CurrentStage string
	RunID        string
	Source       string
	Status       string
	CreationTime int64
}

// Run is one tracked training run.
type Run struct {
	ID           string
	ExperimentID string
	Status       string
	StartTime    int64
	EndTime      int64
}

// Registry is the tracking-service surface the training job and the
// serving process depend on.
type Registry interface {
	// GetLatestVersion resolves the newest version of a model, optionally
	// restricted to the given stages. Returns ErrNotFound when no version
	// matches.
	GetLatestVersion(ctx context.Context, name string, stages []string) (*ModelVersion, error)

	// CreateRun opens a run under the named experiment, creating the
	// experiment if needed.
	CreateRun(ctx context.Context, experimentName string) (*Run, error)
	LogParam(ctx context.Context, runID, key, value string) error
	LogMetric(ctx context.Context, runID, key string, value float64, timestamp int64) error
	// FinishRun closes the run with a terminal status.
	FinishRun(ctx context.Context, runID, status string) error

	// EnsureRegisteredModel creates the named model if it does not already
	// exist.
	EnsureRegisteredModel(ctx context.Context, name string) error
	// CreateModelVersion registers a new, unlabeled version backed by a run.
	CreateModelVersion(ctx context.Context, name, runID, source string) (*ModelVersion, error)
	// TransitionStage relabels a version; with archiveExisting set, every
	// other version currently in the target stage moves to Archived first.
	TransitionStage(ctx context.Context, name string, version int, stage string, archiveExisting bool) (*ModelVersion, error)

	// UploadArtifact stores a blob under the run at the given relative path.
	UploadArtifact(ctx context.Context, runID, path string, data []byte) error
	// DownloadArtifact fetches a blob previously stored under the run.
	DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error)
}
