package sql

// RegisteredModel mapped from table <registered_models>
type RegisteredModel struct {
	Name            string `gorm:"column:name;primaryKey"`
	CreationTime    int64  `gorm:"column:creation_time"`
	LastUpdatedTime int64  `gorm:"column:last_updated_time"`
	Description     string `gorm:"column:description"`
}

// ModelVersion mapped from table <model_versions>
type ModelVersion struct {
	Name            string `gorm:"column:name;primaryKey"`
	Version         int32  `gorm:"column:version;primaryKey"`
	CreationTime    int64  `gorm:"column:creation_time"`
	LastUpdatedTime int64  `gorm:"column:last_updated_time"`
	CurrentStage    string `gorm:"column:current_stage"`
	Source          string `gorm:"column:source"`
	RunID           string `gorm:"column:run_id"`
	Status          string `gorm:"column:status"`
	StorageLocation string `gorm:"column:storage_location"`
}

// Experiment mapped from table <experiments>
type Experiment struct {
	ExperimentID     int32  `gorm:"column:experiment_id;primaryKey;autoIncrement"`
	Name             string `gorm:"column:name;unique"`
	ArtifactLocation string `gorm:"column:artifact_location"`
	LifecycleStage   string `gorm:"column:lifecycle_stage"`
	CreationTime     int64  `gorm:"column:creation_time"`
	LastUpdateTime   int64  `gorm:"column:last_update_time"`
}

// Run mapped from table <runs>
type Run struct {
	RunUUID      string `gorm:"column:run_uuid;primaryKey"`
	ExperimentID int32  `gorm:"column:experiment_id"`
	Status       string `gorm:"column:status"`
	StartTime    int64  `gorm:"column:start_time"`
	EndTime      int64  `gorm:"column:end_time"`
	ArtifactURI  string `gorm:"column:artifact_uri"`
}

// Param mapped from table <params>
type Param struct {
	Key     string `gorm:"column:key;primaryKey"`
	Value   string `gorm:"column:value"`
	RunUUID string `gorm:"column:run_uuid;primaryKey"`
}

// Metric mapped from table <metrics>
type Metric struct {
	Key       string  `gorm:"column:key;primaryKey"`
	Value     float64 `gorm:"column:value"`
	Timestamp int64   `gorm:"column:timestamp;primaryKey"`
	Step      int64   `gorm:"column:step"`
	RunUUID   string  `gorm:"column:run_uuid;primaryKey"`
}
