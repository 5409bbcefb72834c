package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
)

// Duration is a time.Duration that accepts either a number of nanoseconds
// or a ParseDuration string ("30s") in JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return errors.New("invalid duration")
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type Training struct {
	NEstimators  int     `json:"n_estimators"  validate:"gt=0"`
	RandomState  int64   `json:"random_state"`
	TestFraction float64 `json:"test_fraction" validate:"gt=0,lt=1"`
	MinLeafSize  int     `json:"min_leaf_size" validate:"gt=0"`
}

type Config struct {
	Address         string   `json:"address"          validate:"required"`
	StaticFolder    string   `json:"static_folder"`
	LogLevel        string   `json:"log_level"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`

	// RegistryURL selects the registry backend by scheme: http/https for a
	// remote tracking server, sqlite/postgres/mysql/sqlserver for the
	// embedded store.
	RegistryURL   string `json:"registry_url" validate:"required"`
	RegistryToken string `json:"registry_token"`
	ArtifactRoot  string `json:"artifact_root"`

	ModelName   string `json:"model_name" validate:"required"`
	DatasetPath string `json:"dataset_path"`

	Training Training `json:"training"`
}

// Default returns the configuration the demo ships with.
func Default() Config {
	return Config{
		Address:         ":5000",
		StaticFolder:    "static",
		LogLevel:        "info",
		ShutdownTimeout: Duration{30 * time.Second},
		RegistryURL:     "sqlite://pricer.db",
		ArtifactRoot:    "artifacts",
		ModelName:       "diamond-price-regressor",
		DatasetPath:     "data/diamonds.csv",
		Training: Training{
			NEstimators:  100,
			RandomState:  42,
			TestFraction: 0.2,
			MinLeafSize:  1,
		},
	}
}

// Load builds a Config from defaults, an optional JSON file and PRICER_*
// environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides string, int, int64 and float64 fields from environment
// variables named PRICER_<SCREAMING_SNAKE_FIELD>, nested structs included
// (PRICER_TRAINING_N_ESTIMATORS).
func applyEnv(cfg *Config) error {
	return applyEnvValue(reflect.ValueOf(cfg).Elem(), "PRICER")
}

func applyEnvValue(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := prefix + "_" + strcase.ToScreamingSnake(field.Name)

		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && field.Type != reflect.TypeOf(Duration{}) {
			if err := applyEnvValue(fv, name); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		switch field.Type {
		case reflect.TypeOf(Duration{}):
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid duration in %s: %w", name, err)
			}
			fv.Set(reflect.ValueOf(Duration{d}))
		default:
			switch fv.Kind() {
			case reflect.String:
				fv.SetString(raw)
			case reflect.Int, reflect.Int64:
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid integer in %s: %w", name, err)
				}
				fv.SetInt(n)
			case reflect.Float64:
				f, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return fmt.Errorf("invalid float in %s: %w", name, err)
				}
				fv.SetFloat(f)
			default:
				return fmt.Errorf("unsupported override type for %s", name)
			}
		}
	}
	return nil
}
