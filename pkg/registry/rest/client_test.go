package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diamondlab/pricer/pkg/registry"
)

func TestGetLatestVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/2.0/mlflow/registered-models/get-latest-versions", r.URL.Path)
		require.Equal(t, "diamond-price-regressor", r.URL.Query().Get("name"))
		require.Equal(t, []string{"Production"}, r.URL.Query()["stages"])
		require.Equal(t, "Bearer token123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_versions": []map[string]any{
				{"name": "diamond-price-regressor", "version": "2", "current_stage": "Production",
					"run_id": "abc", "creation_timestamp": 2000},
				{"name": "diamond-price-regressor", "version": "3", "current_stage": "Production",
					"run_id": "def", "creation_timestamp": 3000},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token123")
	mv, err := client.GetLatestVersion(context.Background(), "diamond-price-regressor", []string{registry.StageProduction})
	require.NoError(t, err)
	assert.Equal(t, 3, mv.Version)
	assert.Equal(t, "def", mv.RunID)
}

func TestGetLatestVersionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"model_versions": []any{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.GetLatestVersion(context.Background(), "missing", nil)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCreateRunResolvesExperiment(t *testing.T) {
	var createdExperiment bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/experiments/get-by-name":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error_code": "RESOURCE_DOES_NOT_EXIST",
				"message":    "experiment not found",
			})
		case "/api/2.0/mlflow/experiments/create":
			createdExperiment = true
			_ = json.NewEncoder(w).Encode(map[string]any{"experiment_id": "7"})
		case "/api/2.0/mlflow/runs/create":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Equal(t, "7", payload["experiment_id"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"run": map[string]any{"info": map[string]any{
					"run_id": "run42", "experiment_id": "7", "start_time": 123,
				}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	run, err := client.CreateRun(context.Background(), "diamond-price")
	require.NoError(t, err)
	assert.True(t, createdExperiment)
	assert.Equal(t, "run42", run.ID)
	assert.Equal(t, registry.RunStatusRunning, run.Status)
}

func TestEnsureRegisteredModelToleratesExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code": "RESOURCE_ALREADY_EXISTS",
			"message":    "model already exists",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	require.NoError(t, client.EnsureRegisteredModel(context.Background(), "diamond-price-regressor"))
}

func TestTransitionStage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/2.0/mlflow/model-versions/transition-stage", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "4", payload["version"])
		require.Equal(t, "Production", payload["stage"])
		require.Equal(t, true, payload["archive_existing_versions"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_version": map[string]any{
				"name": "diamond-price-regressor", "version": "4", "current_stage": "Production",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	mv, err := client.TransitionStage(context.Background(), "diamond-price-regressor", 4, registry.StageProduction, true)
	require.NoError(t, err)
	assert.Equal(t, registry.StageProduction, mv.CurrentStage)
}

func TestArtifactRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			stored[r.URL.Path] = body
		case r.Method == http.MethodGet && r.URL.Path == "/get-artifact":
			path := "/api/2.0/mlflow-artifacts/artifacts/" + r.URL.Query().Get("run_uuid") +
				"/artifacts/" + r.URL.Query().Get("path")
			data, ok := stored[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	ctx := context.Background()

	require.NoError(t, client.UploadArtifact(ctx, "run1", "model_meta/training_columns.json", []byte(`["carat"]`)))

	data, err := client.DownloadArtifact(ctx, "run1", "model_meta/training_columns.json")
	require.NoError(t, err)
	assert.Equal(t, `["carat"]`, string(data))
}

func TestErrorBodiesSurfaceAsMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("tracking store on fire"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.LogParam(context.Background(), "run1", "k", "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracking store on fire")
}
