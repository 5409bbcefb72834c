// Package sql implements the embedded tracking store: the same tables a
// real tracking server keeps, on a local database, with artifacts on the
// filesystem. Used for local development and in tests.
package sql

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/embed" // bundle the sqlite wasm build
	"github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diamondlab/pricer/pkg/registry"
)

type Store struct {
	db           *gorm.DB
	artifactRoot string
}

var _ registry.Registry = (*Store)(nil)

// NewStore opens the tracking database named by storeURL. The scheme picks
// the driver: sqlite, postgres, mysql or sqlserver.
func NewStore(storeURL, artifactRoot string) (*Store, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store URL %q: %w", storeURL, err)
	}

	var dialector gorm.Dialector
	switch u.Scheme {
	case "sqlite":
		dsn := strings.TrimPrefix(storeURL, "sqlite://")
		dialector = gormlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(storeURL)
	case "mysql":
		dialector = mysql.Open(strings.TrimPrefix(storeURL, "mysql://"))
	case "sqlserver":
		dialector = sqlserver.Open(storeURL)
	default:
		return nil, fmt.Errorf("unsupported store URL scheme %q", u.Scheme)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %q: %w", storeURL, err)
	}

	if err := db.AutoMigrate(
		&Experiment{}, &Run{}, &Param{}, &Metric{},
		&RegisteredModel{}, &ModelVersion{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate tracking schema: %w", err)
	}

	return &Store{db: db, artifactRoot: artifactRoot}, nil
}

func (s *Store) GetLatestVersion(ctx context.Context, name string, stages []string) (*registry.ModelVersion, error) {
	query := s.db.WithContext(ctx).Where("name = ?", name)
	if len(stages) > 0 {
		query = query.Where("current_stage IN ?", stages)
	}

	var mv ModelVersion
	err := query.Order("version DESC").First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest version of %q: %w", name, err)
	}

	return &registry.ModelVersion{
		Name:         mv.Name,
		Version:      int(mv.Version),
		CurrentStage: mv.CurrentStage,
		RunID:        mv.RunID,
		Source:       mv.Source,
		Status:       mv.Status,
		CreationTime: mv.CreationTime,
	}, nil
}

func (s *Store) CreateRun(ctx context.Context, experimentName string) (*registry.Run, error) {
	now := time.Now().UnixMilli()

	var experiment Experiment
	err := s.db.WithContext(ctx).Where("name = ?", experimentName).First(&experiment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		experiment = Experiment{
			Name:           experimentName,
			LifecycleStage: "active",
			CreationTime:   now,
			LastUpdateTime: now,
		}
		if err := s.db.WithContext(ctx).Create(&experiment).Error; err != nil {
			return nil, fmt.Errorf("failed to create experiment %q: %w", experimentName, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up experiment %q: %w", experimentName, err)
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	run := Run{
		RunUUID:      runID,
		ExperimentID: experiment.ExperimentID,
		Status:       registry.RunStatusRunning,
		StartTime:    now,
		ArtifactURI:  filepath.Join(s.artifactRoot, runID, "artifacts"),
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return &registry.Run{
		ID:           run.RunUUID,
		ExperimentID: fmt.Sprint(run.ExperimentID),
		Status:       run.Status,
		StartTime:    run.StartTime,
	}, nil
}

func (s *Store) LogParam(ctx context.Context, runID, key, value string) error {
	param := Param{Key: key, Value: value, RunUUID: runID}
	if err := s.db.WithContext(ctx).Create(&param).Error; err != nil {
		return fmt.Errorf("failed to log param %q: %w", key, err)
	}
	return nil
}

func (s *Store) LogMetric(ctx context.Context, runID, key string, value float64, timestamp int64) error {
	metric := Metric{Key: key, Value: value, Timestamp: timestamp, RunUUID: runID}
	if err := s.db.WithContext(ctx).Create(&metric).Error; err != nil {
		return fmt.Errorf("failed to log metric %q: %w", key, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	result := s.db.WithContext(ctx).Model(&Run{}).
		Where("run_uuid = ?", runID).
		Updates(map[string]any{"status": status, "end_time": time.Now().UnixMilli()})
	if result.Error != nil {
		return fmt.Errorf("failed to finish run %q: %w", runID, result.Error)
	}
	if result.RowsAffected == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) EnsureRegisteredModel(ctx context.Context, name string) error {
	now := time.Now().UnixMilli()
	var existing RegisteredModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up registered model %q: %w", name, err)
	}

	rm := RegisteredModel{Name: name, CreationTime: now, LastUpdatedTime: now}
	if err := s.db.WithContext(ctx).Create(&rm).Error; err != nil {
		return fmt.Errorf("failed to create registered model %q: %w", name, err)
	}
	return nil
}

func (s *Store) CreateModelVersion(ctx context.Context, name, runID, source string) (*registry.ModelVersion, error) {
	now := time.Now().UnixMilli()

	var created ModelVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last ModelVersion
		next := int32(1)
		err := tx.Where("name = ?", name).Order("version DESC").First(&last).Error
		if err == nil {
			next = last.Version + 1
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		created = ModelVersion{
			Name:            name,
			Version:         next,
			CreationTime:    now,
			LastUpdatedTime: now,
			CurrentStage:    registry.StageNone,
			Source:          source,
			RunID:           runID,
			Status:          "READY",
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model version for %q: %w", name, err)
	}

	return &registry.ModelVersion{
		Name:         created.Name,
		Version:      int(created.Version),
		CurrentStage: created.CurrentStage,
		RunID:        created.RunID,
		Source:       created.Source,
		Status:       created.Status,
		CreationTime: created.CreationTime,
	}, nil
}

func (s *Store) TransitionStage(ctx context.Context, name string, version int, stage string, archiveExisting bool) (*registry.ModelVersion, error) {
	now := time.Now().UnixMilli()

	var out ModelVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if archiveExisting {
			err := tx.Model(&ModelVersion{}).
				Where("name = ? AND current_stage = ? AND version <> ?", name, stage, version).
				Updates(map[string]any{"current_stage": registry.StageArchived, "last_updated_time": now}).Error
			if err != nil {
				return err
			}
		}

		result := tx.Model(&ModelVersion{}).
			Where("name = ? AND version = ?", name, version).
			Updates(map[string]any{"current_stage": stage, "last_updated_time": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return registry.ErrNotFound
		}

		return tx.Where("name = ? AND version = ?", name, version).First(&out).Error
	})
	if errors.Is(err, registry.ErrNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition %q version %d to %s: %w", name, version, stage, err)
	}

	return &registry.ModelVersion{
		Name:         out.Name,
		Version:      int(out.Version),
		CurrentStage: out.CurrentStage,
		RunID:        out.RunID,
		Source:       out.Source,
		Status:       out.Status,
		CreationTime: out.CreationTime,
	}, nil
}

func (s *Store) UploadArtifact(ctx context.Context, runID, path string, data []byte) error {
	full := filepath.Join(s.artifactRoot, runID, "artifacts", filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %q: %w", path, err)
	}
	return nil
}

func (s *Store) DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	full := filepath.Join(s.artifactRoot, runID, "artifacts", filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %q: %w", path, err)
	}
	return data, nil
}
